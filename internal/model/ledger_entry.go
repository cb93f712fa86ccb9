package model

import (
	"time"
)

// ============================================================================
// 账本流水类型
// ============================================================================

const (
	EntryTypePayment    = "PAYMENT"    // 购买积分到账
	EntryTypeGeneration = "GENERATION" // 生成图片扣费
	EntryTypeAdjustment = "ADJUSTMENT" // 管理员调整
)

// LedgerEntry 积分流水表
//
// 只追加，不修改，不删除；记录变动前后余额，便于对账
type LedgerEntry struct {
	ID            string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID        string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	RefID         string    `gorm:"type:varchar(64);index;not null" json:"ref_id"` // 关联的支付单号/图片ID
	Amount        int64     `gorm:"not null" json:"amount"`                        // 正数入账，负数出账
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
