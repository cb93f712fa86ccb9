package model

import (
	"encoding/json"
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 与业务数据同事务写入，由 OutboxSender 异步投递到 Kafka
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"` // 分区键，使用账户ID保证同一账户有序
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

// NewOutboxMessage 将 payload 序列化为 JSON 后构造待发送消息
func NewOutboxMessage(topic, key string, payload interface{}) (*OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    string(data),
		Status:     OutboxStatusPending,
	}, nil
}

// BalanceChangedPayload balance_changed 消息体
type BalanceChangedPayload struct {
	UserID    string `json:"user_id"`
	EntryID   string `json:"entry_id"`
	RefID     string `json:"ref_id"`
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"`
	ChangedAt string `json:"changed_at"`
}

// PaymentSettledPayload payment_settled 消息体
type PaymentSettledPayload struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Credits   int64  `json:"credits"`
	Method    string `json:"method"`
	Status    string `json:"status"`
	SettledAt string `json:"settled_at"`
}
