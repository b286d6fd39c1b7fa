// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserRole 用户全局角色
type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleManager UserRole = "manager"
	UserRoleUser    UserRole = "user"
)

// UserStatus 用户状态
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// MinPasswordLength 密码最小长度
const MinPasswordLength = 8

// NotificationPreferences 通知偏好
type NotificationPreferences struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

// UserPreferences 用户偏好设置
type UserPreferences struct {
	Timezone      string                  `json:"timezone"`
	Language      string                  `json:"language"`
	Notifications NotificationPreferences `json:"notifications"`
	Theme         string                  `json:"theme"`
}

// DefaultUserPreferences 默认偏好
func DefaultUserPreferences() UserPreferences {
	return UserPreferences{
		Timezone:      "UTC",
		Language:      "en",
		Notifications: NotificationPreferences{Email: true},
		Theme:         "light",
	}
}

// User 用户实体
type User struct {
	ID            string          `json:"id" gorm:"type:uuid;primaryKey"`
	Email         string          `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash  string          `json:"-" gorm:"type:varchar(255);not null"` // 不在 JSON 中暴露
	FirstName     string          `json:"firstName" gorm:"type:varchar(50)"`
	LastName      string          `json:"lastName" gorm:"type:varchar(50)"`
	Role          UserRole        `json:"role" gorm:"type:varchar(16);index;not null"`
	Status        UserStatus      `json:"status" gorm:"type:varchar(16);index;not null"`
	EmailVerified bool            `json:"emailVerified" gorm:"not null;default:false"`
	LastLoginAt   *time.Time      `json:"lastLoginAt,omitempty"`
	Preferences   UserPreferences `json:"preferences" gorm:"serializer:json;type:jsonb"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}

// NewUser 创建新用户
func NewUser(email, firstName, lastName string, role UserRole) *User {
	now := time.Now().UTC()
	if role == "" {
		role = UserRoleUser
	}
	return &User{
		ID:          uuid.NewString(),
		Email:       NormalizeEmail(email),
		FirstName:   firstName,
		LastName:    lastName,
		Role:        role,
		Status:      UserStatusActive,
		Preferences: DefaultUserPreferences(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NormalizeEmail 统一邮箱格式（去空白、小写）
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAdmin 检查用户是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin && u.Status == UserStatusActive
}

// IsManager 检查用户是否具备管理者及以上权限
func (u *User) IsManager() bool {
	return u.Status == UserStatusActive && (u.Role == UserRoleAdmin || u.Role == UserRoleManager)
}

// IsActive 检查用户是否活跃
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// SetPassword 设置并散列密码，cost <= 0 时使用默认强度
func (u *User) SetPassword(password string, cost int) error {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword 校验密码
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// Clone 拷贝用户
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLoginAt != nil {
		at := *u.LastLoginAt
		c.LastLoginAt = &at
	}
	return &c
}

// PasswordResetToken 密码重置令牌，只保存摘要
type PasswordResetToken struct {
	ID        string     `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    string     `json:"userId" gorm:"type:uuid;index;not null"`
	TokenHash string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	ExpiresAt time.Time  `json:"expiresAt" gorm:"not null"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// TableName 表名
func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}

// Usable 令牌未使用且未过期
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
