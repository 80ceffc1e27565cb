package users

import (
	"strings"
	"time"
)

const (
	maxNameLength   = 64
	maxEmailLength  = 320
	maxAvatarLength = 512
	defaultLevel    = 1
)

// User is a registered account.
type User struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name           string    `gorm:"column:name;size:64;not null;uniqueIndex"`
	PasswordHash   string    `gorm:"column:password_hash;size:255;not null"`
	Email          string    `gorm:"column:email;size:320;not null;default:''"`
	AvatarURL      string    `gorm:"column:avatar_url;size:512;not null;default:''"`
	PrivilegeLevel int       `gorm:"column:privilege_level;not null;default:1"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
