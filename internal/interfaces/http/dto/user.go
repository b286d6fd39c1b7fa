package dto

import (
	"saas-tenancy-api/internal/domain/entity"
)

// UserResponse 用户响应，不包含密码摘要
type UserResponse struct {
	ID            string                 `json:"id"`
	Email         string                 `json:"email"`
	FirstName     string                 `json:"firstName"`
	LastName      string                 `json:"lastName"`
	Role          string                 `json:"role"`
	Status        string                 `json:"status"`
	EmailVerified bool                   `json:"emailVerified"`
	LastLoginAt   *string                `json:"lastLoginAt,omitempty"`
	Preferences   entity.UserPreferences `json:"preferences"`
	CreatedAt     string                 `json:"createdAt"`
	UpdatedAt     string                 `json:"updatedAt"`
}

// ToUserResponse 实体转换为响应
func ToUserResponse(u *entity.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Role:          string(u.Role),
		Status:        string(u.Status),
		EmailVerified: u.EmailVerified,
		LastLoginAt:   formatTimePtr(u.LastLoginAt),
		Preferences:   u.Preferences,
		CreatedAt:     formatTime(u.CreatedAt),
		UpdatedAt:     formatTime(u.UpdatedAt),
	}
}

// ToUserResponses 批量转换
func ToUserResponses(items []*entity.User) []*UserResponse {
	out := make([]*UserResponse, 0, len(items))
	for _, u := range items {
		out = append(out, ToUserResponse(u))
	}
	return out
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ResetPasswordRequest 申请重置密码请求
type ResetPasswordRequest struct {
	Email string `json:"email"`
}

// SetPasswordRequest 使用令牌设置密码请求
type SetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// OrganizationResponse 组织响应
type OrganizationResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy,omitempty"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// ToOrganizationResponse 实体转换为响应
func ToOrganizationResponse(o *entity.Organization) *OrganizationResponse {
	if o == nil {
		return nil
	}
	return &OrganizationResponse{
		ID:        o.ID,
		Name:      o.Name,
		CreatedBy: o.CreatedBy,
		CreatedAt: formatTime(o.CreatedAt),
		UpdatedAt: formatTime(o.UpdatedAt),
	}
}

// ToOrganizationResponses 批量转换
func ToOrganizationResponses(items []*entity.Organization) []*OrganizationResponse {
	out := make([]*OrganizationResponse, 0, len(items))
	for _, o := range items {
		out = append(out, ToOrganizationResponse(o))
	}
	return out
}

// MembershipResponse 成员关系响应
type MembershipResponse struct {
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
	Role           string `json:"role"`
	CreatedAt      string `json:"createdAt"`
}

// ToMembershipResponses 批量转换
func ToMembershipResponses(items []*entity.Membership) []*MembershipResponse {
	out := make([]*MembershipResponse, 0, len(items))
	for _, m := range items {
		out = append(out, ToMembershipResponse(m))
	}
	return out
}

// ToMembershipResponse 实体转换为响应
func ToMembershipResponse(m *entity.Membership) *MembershipResponse {
	if m == nil {
		return nil
	}
	return &MembershipResponse{
		OrganizationID: m.OrganizationID,
		UserID:         m.UserID,
		Role:           string(m.Role),
		CreatedAt:      formatTime(m.CreatedAt),
	}
}
