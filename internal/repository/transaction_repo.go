package repository

import (
	"context"
	"errors"

	"quizwallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 硬币流水
// ============================================================================

type CoinTransactionRepository struct {
	db *gorm.DB
}

func NewCoinTransactionRepository(db *gorm.DB) *CoinTransactionRepository {
	return &CoinTransactionRepository{db: db}
}

func (r *CoinTransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.CoinTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

// Latest 账户最近一条流水，没有流水返回 nil
func (r *CoinTransactionRepository) Latest(ctx context.Context, tx *gorm.DB, userID int64) (*model.CoinTransaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.CoinTransaction
	err := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *CoinTransactionRepository) ListByReference(ctx context.Context, referenceType, referenceID string) ([]*model.CoinTransaction, error) {
	var transactions []*model.CoinTransaction
	err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

func (r *CoinTransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.CoinTransaction, int64, error) {
	var transactions []*model.CoinTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CoinTransaction{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// ListAllByUserID 按记账顺序返回全部流水，用于对账时校验余额链
func (r *CoinTransactionRepository) ListAllByUserID(ctx context.Context, userID int64) ([]*model.CoinTransaction, error) {
	var transactions []*model.CoinTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&transactions).Error
	return transactions, err
}

// ============================================================================
// 主余额流水
// ============================================================================

type BalanceTransactionRepository struct {
	db *gorm.DB
}

func NewBalanceTransactionRepository(db *gorm.DB) *BalanceTransactionRepository {
	return &BalanceTransactionRepository{db: db}
}

func (r *BalanceTransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.BalanceTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *BalanceTransactionRepository) Latest(ctx context.Context, tx *gorm.DB, userID int64) (*model.BalanceTransaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.BalanceTransaction
	err := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *BalanceTransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.BalanceTransaction, error) {
	var trans model.BalanceTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *BalanceTransactionRepository) ListByReference(ctx context.Context, referenceType, referenceID string) ([]*model.BalanceTransaction, error) {
	var transactions []*model.BalanceTransaction
	err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

func (r *BalanceTransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.BalanceTransaction, int64, error) {
	var transactions []*model.BalanceTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BalanceTransaction{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

func (r *BalanceTransactionRepository) ListAllByUserID(ctx context.Context, userID int64) ([]*model.BalanceTransaction, error) {
	var transactions []*model.BalanceTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&transactions).Error
	return transactions, err
}

// SumAmounts 在内存中用定点小数求和，不依赖数据库 SUM 的浮点行为
func SumAmounts(transactions []*model.BalanceTransaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range transactions {
		sum = sum.Add(t.Amount)
	}
	return sum
}
