package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 钱包事件类型，随业务事务一起写入 outbox，由 OutboxSender 投递到 Kafka
const (
	EventConversionCompleted     = "conversion.completed"
	EventWithdrawalCreated       = "withdrawal.created"
	EventWithdrawalCancelled     = "withdrawal.cancelled"
	EventWithdrawalStatusChanged = "withdrawal.status_changed"
)

type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"` // Kafka 分区键，使用用户ID保证同一账户事件有序
	EventType  string    `gorm:"type:varchar(64);not null" json:"event_type"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// AllModels 需要自动迁移的全部表
func AllModels() []interface{} {
	return []interface{}{
		&Account{},
		&CoinTransaction{},
		&BalanceTransaction{},
		&ConversionSetting{},
		&WithdrawalSetting{},
		&WithdrawalRequest{},
		&OutboxMessage{},
	}
}
