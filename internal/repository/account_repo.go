package repository

import (
	"context"
	"errors"

	"quizwallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrOptimisticLock  = errors.New("乐观锁冲突，请重试")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AccountRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByUserIDForUpdate 事务内锁定账户行
// 同一账户的并发写事务在这里排队，保证读到的 balance_before 是最新值
func (r *AccountRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// UpdateCoinBalance 写入新的硬币余额
// version 条件是行锁之外的第二道保险，RowsAffected 为 0 说明余额已被别的事务改过
func (r *AccountRepository) UpdateCoinBalance(ctx context.Context, tx *gorm.DB, userID int64, balance int64, version int) error {
	return r.updateBalance(ctx, tx, userID, version, map[string]interface{}{
		"coin_balance": balance,
	})
}

// UpdateMainBalance 写入新的主余额
func (r *AccountRepository) UpdateMainBalance(ctx context.Context, tx *gorm.DB, userID int64, balance decimal.Decimal, version int) error {
	return r.updateBalance(ctx, tx, userID, version, map[string]interface{}{
		"main_balance": balance,
	})
}

func (r *AccountRepository) updateBalance(ctx context.Context, tx *gorm.DB, userID int64, version int, updates map[string]interface{}) error {
	updates["version"] = gorm.Expr("version + 1")

	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND version = ?", userID, version).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	return nil
}

// GetOrCreate 幂等开户，并发开户依赖 user_id 唯一索引兜底
func (r *AccountRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := r.GetByUserID(ctx, nil, userID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.Account{
		UserID:      userID,
		CoinBalance: 0,
		MainBalance: decimal.Zero,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, nil, userID)
}

// ListUserIDsAfter 按 user_id 游标分批遍历账户，用于对账任务
func (r *AccountRepository) ListUserIDsAfter(ctx context.Context, afterUserID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id > ?", afterUserID).
		Order("user_id ASC").
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}
