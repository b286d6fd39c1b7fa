package dto

import (
	"saas-tenancy-api/internal/domain/entity"
)

// TenantResponse 租户响应
type TenantResponse struct {
	ID              string         `json:"id"`
	OrganizationID  string         `json:"organizationId"`
	Name            string         `json:"name"`
	Domain          string         `json:"domain"`
	Subdomain       *string        `json:"subdomain,omitempty"`
	Plan            string         `json:"plan"`
	Features        []string       `json:"features"`
	Settings        map[string]any `json:"settings"`
	Status          string         `json:"status"`
	CreatedBy       string         `json:"createdBy,omitempty"`
	SuspendedReason string         `json:"suspendedReason,omitempty"`
	SuspendedAt     *string        `json:"suspendedAt,omitempty"`
	CreatedAt       string         `json:"createdAt"`
	UpdatedAt       string         `json:"updatedAt"`
}

// ToTenantResponse 实体转换为响应
func ToTenantResponse(t *entity.Tenant) *TenantResponse {
	if t == nil {
		return nil
	}
	features := []string(t.Features)
	if features == nil {
		features = []string{}
	}
	settings := map[string]any(t.Settings)
	if settings == nil {
		settings = map[string]any{}
	}
	return &TenantResponse{
		ID:              t.ID,
		OrganizationID:  t.OrganizationID,
		Name:            t.Name,
		Domain:          t.Domain,
		Subdomain:       t.Subdomain,
		Plan:            string(t.Plan),
		Features:        features,
		Settings:        settings,
		Status:          string(t.Status),
		CreatedBy:       t.CreatedBy,
		SuspendedReason: t.SuspendedReason,
		SuspendedAt:     formatTimePtr(t.SuspendedAt),
		CreatedAt:       formatTime(t.CreatedAt),
		UpdatedAt:       formatTime(t.UpdatedAt),
	}
}

// ToTenantResponses 批量转换
func ToTenantResponses(items []*entity.Tenant) []*TenantResponse {
	out := make([]*TenantResponse, 0, len(items))
	for _, t := range items {
		out = append(out, ToTenantResponse(t))
	}
	return out
}

// IsolationPolicyResponse 隔离策略响应
type IsolationPolicyResponse struct {
	TenantID           string `json:"tenantId"`
	EncryptionRequired bool   `json:"encryptionRequired"`
	RetentionPeriod    int    `json:"retentionPeriod"`
	DataResidency      string `json:"dataResidency"`
	StoragePrefix      string `json:"storagePrefix,omitempty"`
	UpdatedAt          string `json:"updatedAt"`
}

// ToIsolationPolicyResponse 实体转换为响应
func ToIsolationPolicyResponse(p *entity.TenantIsolationPolicy) *IsolationPolicyResponse {
	if p == nil {
		return nil
	}
	return &IsolationPolicyResponse{
		TenantID:           p.TenantID,
		EncryptionRequired: p.EncryptionRequired,
		RetentionPeriod:    p.RetentionPeriodDays,
		DataResidency:      p.DataResidency,
		StoragePrefix:      p.StoragePrefix,
		UpdatedAt:          formatTime(p.UpdatedAt),
	}
}
