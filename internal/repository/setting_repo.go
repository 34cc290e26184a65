package repository

import (
	"context"
	"errors"

	"quizwallet/internal/model"

	"gorm.io/gorm"
)

// SettingRepository 读取后台维护的兑换与提现配置
// 多条生效配置同时存在时取最新一条
type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// ActiveConversionSetting 没有生效配置时返回 nil, nil
func (r *SettingRepository) ActiveConversionSetting(ctx context.Context) (*model.ConversionSetting, error) {
	var setting model.ConversionSetting
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id DESC").
		First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}

func (r *SettingRepository) ActiveWithdrawalSetting(ctx context.Context) (*model.WithdrawalSetting, error) {
	var setting model.WithdrawalSetting
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id DESC").
		First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}
