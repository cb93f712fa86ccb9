package model

import (
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Account 用户账户表
// 记录用户的积分余额，余额只能通过积分账本修改
type Account struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(255) COLLATE utf8mb4_bin;uniqueIndex;not null" json:"email"` // 区分大小写，原样保存
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Credits   int64     `gorm:"not null;default:0" json:"credits"` // 可用积分，永不为负
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Version   int       `gorm:"not null;default:0" json:"-"` // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Account) TableName() string {
	return "account"
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Credential 登录凭证，与账户分表存放，不随账户返回
type Credential struct {
	AccountID string    `gorm:"type:varchar(36);primaryKey" json:"account_id"`
	Secret    string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Credential) TableName() string {
	return "account_credential"
}
