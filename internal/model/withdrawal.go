package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusApproved   WithdrawalStatus = "approved"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"
)

// ValidWithdrawalTransitions 提现状态机
//
//	pending -> processing -> approved -> completed
//	pending -> rejected
//	pending -> cancelled（仅用户发起）
var ValidWithdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:    {WithdrawalStatusProcessing, WithdrawalStatusRejected, WithdrawalStatusCancelled},
	WithdrawalStatusProcessing: {WithdrawalStatusApproved},
	WithdrawalStatusApproved:   {WithdrawalStatusCompleted},
}

func CanWithdrawalTransitionTo(current, target WithdrawalStatus) bool {
	allowed, exists := ValidWithdrawalTransitions[current]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal 终态不再允许任何流转
func (s WithdrawalStatus) IsTerminal() bool {
	_, exists := ValidWithdrawalTransitions[s]
	return !exists
}

// WithdrawalRequest 提现申请
//
// 申请时全额 Amount 从主余额扣除（冻结），NetAmount 仅展示给用户，
// 实际打款由外部出款流程完成
type WithdrawalRequest struct {
	ID            int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestNo     string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_no"`
	UserID        int64            `gorm:"index;not null" json:"user_id"`
	Amount        decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"amount"`
	Fee           decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"fee"`
	NetAmount     decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"net_amount"`
	PaymentMethod string           `gorm:"type:varchar(32);not null" json:"payment_method"`
	AccountNumber string           `gorm:"type:varchar(64);not null" json:"account_number"`
	AccountName   string           `gorm:"type:varchar(128)" json:"account_name,omitempty"`
	BankName      string           `gorm:"type:varchar(128)" json:"bank_name,omitempty"`
	BranchName    string           `gorm:"type:varchar(128)" json:"branch_name,omitempty"`
	Status        WithdrawalStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	AdminNotes    string           `gorm:"type:varchar(512)" json:"admin_notes,omitempty"`
	ProcessedBy   *int64           `json:"processed_by,omitempty"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty"`
	DebitEntryNo  string           `gorm:"type:varchar(64);not null" json:"debit_entry_no"` // 冻结扣款流水号
	RefundEntryNo string           `gorm:"type:varchar(64)" json:"refund_entry_no,omitempty"`
	CreatedAt     time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_request"
}
