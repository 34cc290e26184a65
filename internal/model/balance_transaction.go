package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BalanceTransactionType string

const (
	BalanceTypeCredit     BalanceTransactionType = "credit"
	BalanceTypeDebit      BalanceTransactionType = "debit"
	BalanceTypeWithdrawal BalanceTransactionType = "withdrawal" // 提现冻结扣款
	BalanceTypeDeposit    BalanceTransactionType = "deposit"
	BalanceTypeConversion BalanceTransactionType = "conversion" // 硬币兑换入账
	BalanceTypeRefund     BalanceTransactionType = "refund"     // 提现取消/驳回退回
)

var balanceTransactionTypes = map[BalanceTransactionType]struct{}{
	BalanceTypeCredit:     {},
	BalanceTypeDebit:      {},
	BalanceTypeWithdrawal: {},
	BalanceTypeDeposit:    {},
	BalanceTypeConversion: {},
	BalanceTypeRefund:     {},
}

func (t BalanceTransactionType) Valid() bool {
	_, ok := balanceTransactionTypes[t]
	return ok
}

// BalanceTransaction 主余额流水表
// 结构与 CoinTransaction 一致，金额使用定点小数，保留两位
type BalanceTransaction struct {
	ID            int64                  `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string                 `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID        int64                  `gorm:"index:idx_balance_user_created,priority:1;not null" json:"user_id"`
	Amount        decimal.Decimal        `gorm:"type:decimal(18,2);not null" json:"amount"` // 正数入账，负数出账
	Type          BalanceTransactionType `gorm:"type:varchar(32);index;not null" json:"type"`
	Source        string                 `gorm:"type:varchar(64);not null" json:"source"`
	Description   string                 `gorm:"type:varchar(256)" json:"description"`
	ReferenceID   string                 `gorm:"type:varchar(64);index:idx_balance_reference,priority:2" json:"reference_id,omitempty"`
	ReferenceType string                 `gorm:"type:varchar(64);index:idx_balance_reference,priority:1" json:"reference_type,omitempty"`
	BalanceBefore decimal.Decimal        `gorm:"type:decimal(18,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal        `gorm:"type:decimal(18,2);not null" json:"balance_after"`
	CreatedAt     time.Time              `gorm:"index:idx_balance_user_created,priority:2;not null" json:"created_at"`
}

func (BalanceTransaction) TableName() string {
	return "balance_transaction"
}
