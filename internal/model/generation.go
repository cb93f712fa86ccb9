package model

import (
	"time"
)

const (
	Size1K = "1K"
	Size2K = "2K"
	Size4K = "4K"
)

func IsValidSize(size string) bool {
	return size == Size1K || size == Size2K || size == Size4K
}

// Generation 图片生成记录，创建后不再修改
type Generation struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Prompt    string    `gorm:"type:text;not null" json:"prompt"`
	ImageURL  string    `gorm:"type:longtext;not null" json:"image_url"` // data URI 或远程地址
	Model     string    `gorm:"type:varchar(64);not null" json:"model"`
	Size      string    `gorm:"type:varchar(4);not null" json:"size"`
	Cost      int64     `gorm:"not null" json:"cost"` // 本次扣除的积分
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Generation) TableName() string {
	return "generation"
}
