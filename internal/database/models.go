package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息。
// 登录口令单独存放在 Credential 中，注册时两行必须同事务写入。
type User struct {
	gorm.Model
	Username  string `gorm:"uniqueIndex;size:64"`
	IsPremium bool   `gorm:"default:false"`
	Bios      []Bio  `gorm:"constraint:OnDelete:CASCADE"`
}

// Credential 保存账号口令哈希。
type Credential struct {
	gorm.Model
	UserID       uint   `gorm:"uniqueIndex"`
	PasswordHash string `gorm:"size:255"`
}

// Bio 表示一次成功生成并持久化的个人简介。
// 记录只增不改，仅允许所有者删除。
type Bio struct {
	gorm.Model
	UserID       *uint  `gorm:"index"`
	Platform     string `gorm:"size:32;index"`
	Style        string `gorm:"size:32"`
	Content      string `gorm:"type:text"`
	Interests    string `gorm:"size:512"`
	Score        int
	ScoreDetails datatypes.JSON `gorm:"type:jsonb"`
}

// UsageRecord 记录每次生成的计量信息，由 worker 异步写入。
type UsageRecord struct {
	gorm.Model
	UserID   uint   `gorm:"index"`
	Platform string `gorm:"size:32"`
	Premium  bool
	Provider string `gorm:"size:32"`
}
