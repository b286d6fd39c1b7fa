// Package tenancy 实现租户注册表、数据隔离策略与租户解析
package tenancy

import (
	"context"
	"time"

	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/validate"
)

// ScopeProvisioner 外部存储中的租户隔离作用域
type ScopeProvisioner interface {
	ScopePrefix(tenantID string) string
	Provision(ctx context.Context, policy *entity.TenantIsolationPolicy) error
	Teardown(ctx context.Context, tenantID string) error
}

// IsolationSettings 隔离策略输入，缺省字段取配置默认值
type IsolationSettings struct {
	EncryptionRequired  *bool  `json:"encryptionRequired"`
	RetentionPeriodDays *int   `json:"retentionPeriod" validate:"omitempty,min=1,max=3650"`
	DataResidency       string `json:"dataResidency" validate:"omitempty,max=32"`
}

// IsolationService 租户数据隔离策略
type IsolationService struct {
	repo        repository.IsolationPolicyRepository
	provisioner ScopeProvisioner
	defaults    config.IsolationConfig
}

// NewIsolationService 创建隔离策略服务，provisioner 可为 nil
func NewIsolationService(repo repository.IsolationPolicyRepository, provisioner ScopeProvisioner, defaults config.IsolationConfig) *IsolationService {
	return &IsolationService{repo: repo, provisioner: provisioner, defaults: defaults}
}

// Initialize 记录隔离策略并开通存储作用域
// 重复调用会覆盖已有设置。
func (s *IsolationService) Initialize(ctx context.Context, tenantID string, settings IsolationSettings) (*entity.TenantIsolationPolicy, error) {
	policy, err := s.record(ctx, tenantID, settings)
	if err != nil {
		return nil, err
	}
	s.provision(ctx, policy)
	return policy, nil
}

// record 只写策略记录，可在事务中调用
func (s *IsolationService) record(ctx context.Context, tenantID string, settings IsolationSettings) (*entity.TenantIsolationPolicy, error) {
	if err := validate.Struct(settings); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	policy := &entity.TenantIsolationPolicy{
		TenantID:            tenantID,
		EncryptionRequired:  s.defaults.EncryptionRequired,
		RetentionPeriodDays: s.defaults.RetentionPeriodDays,
		DataResidency:       s.defaults.DataResidency,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if settings.EncryptionRequired != nil {
		policy.EncryptionRequired = *settings.EncryptionRequired
	}
	if settings.RetentionPeriodDays != nil {
		policy.RetentionPeriodDays = *settings.RetentionPeriodDays
	}
	if settings.DataResidency != "" {
		policy.DataResidency = settings.DataResidency
	}
	if s.provisioner != nil {
		policy.StoragePrefix = s.provisioner.ScopePrefix(tenantID)
	}

	existing, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, errors.Database(err, "failed to load isolation policy")
	}
	if existing != nil {
		policy.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.Upsert(ctx, policy); err != nil {
		return nil, errors.Database(err, "failed to save isolation policy")
	}
	return policy, nil
}

// provision 开通外部存储作用域，失败不影响租户本身
func (s *IsolationService) provision(ctx context.Context, policy *entity.TenantIsolationPolicy) {
	if s.provisioner == nil {
		return
	}
	if err := s.provisioner.Provision(ctx, policy); err != nil {
		logger.Error(ctx, "failed to provision tenant storage scope", err, "tenant_id", policy.TenantID)
	}
}

// Get 获取租户隔离策略
func (s *IsolationService) Get(ctx context.Context, tenantID string) (*entity.TenantIsolationPolicy, error) {
	policy, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, errors.Database(err, "failed to load isolation policy")
	}
	if policy == nil {
		return nil, errors.New(errors.CodeNotFound, "isolation policy not found")
	}
	return policy, nil
}

// Teardown 删除隔离策略与存储作用域，已删除时为空操作
func (s *IsolationService) Teardown(ctx context.Context, tenantID string) error {
	if err := s.repo.Delete(ctx, tenantID); err != nil {
		return errors.Database(err, "failed to delete isolation policy")
	}
	if s.provisioner != nil {
		if err := s.provisioner.Teardown(ctx, tenantID); err != nil {
			logger.Error(ctx, "failed to tear down tenant storage scope", err, "tenant_id", tenantID)
		}
	}
	return nil
}
