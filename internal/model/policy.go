package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConversionSetting 硬币兑换主余额配置（后台维护，服务只读）
// 同一时刻最多一条 is_active = true，没有生效配置时兑换不可用
type ConversionSetting struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CoinsRequired     int64           `gorm:"not null" json:"coins_required"`                         // 每个兑换单位需要的硬币数
	MainBalanceAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"main_balance_amount"` // 每个兑换单位获得的金额
	MinimumCoins      int64           `gorm:"not null;default:0" json:"minimum_coins"`                // 单次兑换最低硬币数
	IsActive          bool            `gorm:"index;not null;default:false" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ConversionSetting) TableName() string {
	return "conversion_setting"
}

// WithdrawalSetting 提现配置
type WithdrawalSetting struct {
	ID             int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	MinimumAmount  decimal.Decimal     `gorm:"type:decimal(18,2);not null" json:"minimum_amount"`
	MaximumAmount  decimal.NullDecimal `gorm:"type:decimal(18,2)" json:"maximum_amount"` // 为空表示不限上限
	FeePercentage  decimal.Decimal     `gorm:"type:decimal(5,2);not null;default:0" json:"fee_percentage"`
	FeeFixed       decimal.Decimal     `gorm:"type:decimal(18,2);not null;default:0" json:"fee_fixed"`
	ProcessingDays int                 `gorm:"not null;default:0" json:"processing_days"`
	PaymentMethods []string            `gorm:"serializer:json;type:text" json:"payment_methods"`
	IsActive       bool                `gorm:"index;not null;default:false" json:"is_active"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WithdrawalSetting) TableName() string {
	return "withdrawal_setting"
}

// AllowsMethod 判断支付方式是否在允许列表中
func (s *WithdrawalSetting) AllowsMethod(method string) bool {
	for _, m := range s.PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

// ComputeFee 计算手续费：amount * fee_percentage / 100 + fee_fixed
func (s *WithdrawalSetting) ComputeFee(amount decimal.Decimal) decimal.Decimal {
	percent := amount.Mul(s.FeePercentage).Div(decimal.NewFromInt(100))
	return RoundCurrency(percent.Add(s.FeeFixed))
}
