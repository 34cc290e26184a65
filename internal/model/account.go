package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 用户钱包账户
// 同时持有两种余额：硬币余额（整数）与主余额（两位小数的货币）
//
// 【重要】两个余额字段都是流水的缓存投影：
//   - CoinBalance 必须等于 coin_transaction 中该用户 coins 之和
//   - MainBalance 必须等于 balance_transaction 中该用户 amount 之和
//
// 只能通过记账服务在同一个事务内修改，绝不允许单独 UPDATE
type Account struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64           `gorm:"uniqueIndex;not null" json:"user_id"`                       // 用户ID，业务方传入
	CoinBalance int64           `gorm:"not null;default:0;index" json:"coin_balance"`              // 硬币余额
	MainBalance decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"main_balance"` // 主余额（货币）
	Version     int             `gorm:"not null;default:0" json:"version"`                         // 乐观锁版本号
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// CurrencyScale 货币金额统一保留两位小数
const CurrencyScale int32 = 2

// RoundCurrency 按货币精度四舍五入
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyScale)
}
