package model

import (
	"strconv"
	"time"
)

// Account is a gardener's login. Progress records reference it by UserKey.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Email        string     `gorm:"size:128" json:"email"`
	Role         string     `gorm:"size:16" json:"role"`
	Status       int        `gorm:"default:1" json:"status"` // 0=banned 1=normal
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
}

// UserKey is the opaque user identifier stored on progress records.
func (a *Account) UserKey() string {
	return strconv.FormatInt(a.ID, 10)
}
