package entity

import (
	"time"

	"github.com/google/uuid"
)

// Organization 组织实体，拥有租户与订阅
type Organization struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	CreatedBy string    `json:"createdBy,omitempty" gorm:"type:varchar(36)"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 表名
func (Organization) TableName() string {
	return "organizations"
}

// NewOrganization 创建组织
func NewOrganization(name, createdBy string) *Organization {
	now := time.Now().UTC()
	return &Organization{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MembershipRole 组织内角色，独立于用户全局角色
type MembershipRole string

const (
	MembershipRoleOwner  MembershipRole = "owner"
	MembershipRoleAdmin  MembershipRole = "admin"
	MembershipRoleMember MembershipRole = "member"
)

// Valid 检查角色值是否合法
func (r MembershipRole) Valid() bool {
	switch r {
	case MembershipRoleOwner, MembershipRoleAdmin, MembershipRoleMember:
		return true
	}
	return false
}

// CanManage 是否可管理组织（成员、租户、订阅）
func (r MembershipRole) CanManage() bool {
	return r == MembershipRoleOwner || r == MembershipRoleAdmin
}

// Membership 用户与组织的多对多关系
type Membership struct {
	OrganizationID string         `json:"organizationId" gorm:"type:uuid;primaryKey"`
	UserID         string         `json:"userId" gorm:"type:uuid;primaryKey;index"`
	Role           MembershipRole `json:"role" gorm:"type:varchar(16);not null;default:'member'"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// TableName 表名
func (Membership) TableName() string {
	return "organization_members"
}
