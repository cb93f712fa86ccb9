package model

import (
	"time"
)

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

const (
	PaymentMethodInstant        = "INSTANT"
	PaymentMethodManualTransfer = "MANUAL_TRANSFER"
)

// SUCCESS 和 FAILED 都是终态
var ValidStatusTransitions = map[string][]string{
	PaymentStatusPending: {PaymentStatusSuccess, PaymentStatusFailed},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsValidPaymentMethod(method string) bool {
	return method == PaymentMethodInstant || method == PaymentMethodManualTransfer
}

// Payment 积分购买记录
type Payment struct {
	ID            string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID        string     `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Amount        int64      `gorm:"not null" json:"amount"`  // 支付金额
	Credits       int64      `gorm:"not null" json:"credits"` // 到账积分
	Method        string     `gorm:"type:varchar(20);not null" json:"method"`
	Status        string     `gorm:"type:varchar(20);index;not null" json:"status"`
	TransactionID string     `gorm:"type:varchar(128)" json:"transaction_id"` // 网关流水号或转账凭证号
	PlanID        string     `gorm:"type:varchar(32)" json:"plan_id,omitempty"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
}

func (Payment) TableName() string {
	return "payment"
}
