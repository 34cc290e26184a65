package model

import (
	"time"
)

// ============================================================================
// 硬币流水类型
// ============================================================================

type CoinTransactionType string

const (
	CoinTypeEarned          CoinTransactionType = "earned"           // 答题获得
	CoinTypeSpent           CoinTransactionType = "spent"            // 消费
	CoinTypeBonus           CoinTransactionType = "bonus"            // 奖励加成
	CoinTypeReward          CoinTransactionType = "reward"           // 活动奖励
	CoinTypePenalty         CoinTransactionType = "penalty"          // 惩罚扣除
	CoinTypeAdmin           CoinTransactionType = "admin"            // 后台调整
	CoinTypePurchase        CoinTransactionType = "purchase"         // 购买
	CoinTypeRefund          CoinTransactionType = "refund"           // 退还
	CoinTypeConversionDebit CoinTransactionType = "conversion_debit" // 兑换扣除
)

var coinTransactionTypes = map[CoinTransactionType]struct{}{
	CoinTypeEarned:          {},
	CoinTypeSpent:           {},
	CoinTypeBonus:           {},
	CoinTypeReward:          {},
	CoinTypePenalty:         {},
	CoinTypeAdmin:           {},
	CoinTypePurchase:        {},
	CoinTypeRefund:          {},
	CoinTypeConversionDebit: {},
}

func (t CoinTransactionType) Valid() bool {
	_, ok := coinTransactionTypes[t]
	return ok
}

// ============================================================================
// 硬币流水实体
// ============================================================================

// CoinTransaction 硬币流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除，保证审计可追溯
// 2. 记录交易前后余额，BalanceAfter = BalanceBefore + Coins
// 3. 同一账户的 CreatedAt 单调不减，保证因果顺序
type CoinTransaction struct {
	ID            int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64               `gorm:"index:idx_coin_user_created,priority:1;not null" json:"user_id"`
	Coins         int64               `gorm:"not null" json:"coins"`                                       // 硬币变动（正数入账，负数出账）
	Type          CoinTransactionType `gorm:"type:varchar(32);index;not null" json:"type"`                 // 流水类型
	Source        string              `gorm:"type:varchar(64);not null" json:"source"`                     // 来源标签，如 quiz_answer
	Description   string              `gorm:"type:varchar(256)" json:"description"`
	ReferenceID   string              `gorm:"type:varchar(64);index:idx_coin_reference,priority:2" json:"reference_id,omitempty"`
	ReferenceType string              `gorm:"type:varchar(64);index:idx_coin_reference,priority:1" json:"reference_type,omitempty"`
	BalanceBefore int64               `gorm:"not null" json:"balance_before"`                              // 交易前余额
	BalanceAfter  int64               `gorm:"not null" json:"balance_after"`                               // 交易后余额
	CreatedAt     time.Time           `gorm:"index:idx_coin_user_created,priority:2;index;not null" json:"created_at"`
}

func (CoinTransaction) TableName() string {
	return "coin_transaction"
}
