package repository

import (
	"context"
	"errors"

	"quizwallet/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWithdrawalNotFound = errors.New("提现申请不存在")
	ErrStatusTransition   = errors.New("提现状态流转失败")
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, req *model.WithdrawalRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(req).Error
}

func (r *WithdrawalRepository) GetByRequestNo(ctx context.Context, requestNo string) (*model.WithdrawalRequest, error) {
	var req model.WithdrawalRequest
	err := r.db.WithContext(ctx).Where("request_no = ?", requestNo).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &req, nil
}

// GetByRequestNoForUpdate 事务内锁定提现申请
func (r *WithdrawalRepository) GetByRequestNoForUpdate(ctx context.Context, tx *gorm.DB, requestNo string) (*model.WithdrawalRequest, error) {
	var req model.WithdrawalRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("request_no = ?", requestNo).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &req, nil
}

// UpdateStatus 条件更新状态，WHERE status = from 防止并发下重复流转
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, requestNo string, from, to model.WithdrawalStatus, updates map[string]interface{}) error {
	if !model.CanWithdrawalTransitionTo(from, to) {
		return ErrStatusTransition
	}

	if updates == nil {
		updates = make(map[string]interface{})
	}
	updates["status"] = to

	result := tx.WithContext(ctx).
		Model(&model.WithdrawalRequest{}).
		Where("request_no = ? AND status = ?", requestNo, from).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusTransition
	}

	return nil
}

func (r *WithdrawalRepository) ListByUserID(ctx context.Context, userID int64, status model.WithdrawalStatus, page, pageSize int) ([]*model.WithdrawalRequest, int64, error) {
	var requests []*model.WithdrawalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error

	return requests, total, err
}
