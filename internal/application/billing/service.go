// Package billing 实现订阅、账单、支付与用量计量
package billing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"

	"saas-tenancy-api/internal/application/audit"
	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/internal/infrastructure/payment"
	"saas-tenancy-api/pkg/errors"
)

var tracer = otel.Tracer("billing")

// UsageSnapshots 用量快照存储
type UsageSnapshots interface {
	Save(ctx context.Context, snapshot *entity.UsageSnapshot) error
	Latest(ctx context.Context, organizationID string) (*entity.UsageSnapshot, error)
}

// Service 订阅与计费账本
type Service struct {
	subs      repository.SubscriptionRepository
	invoices  repository.InvoiceRepository
	usage     repository.UsageRepository
	orgs      repository.OrganizationRepository
	policy    *authz.Policy
	audit     *audit.Logger
	gateway   payment.Gateway
	snapshots UsageSnapshots
	tx        repository.Transactor
	cfg       config.BillingConfig
}

// NewService 创建计费服务，snapshots 可为空
func NewService(
	subs repository.SubscriptionRepository,
	invoices repository.InvoiceRepository,
	usage repository.UsageRepository,
	orgs repository.OrganizationRepository,
	policy *authz.Policy,
	auditLogger *audit.Logger,
	gateway payment.Gateway,
	snapshots UsageSnapshots,
	tx repository.Transactor,
	cfg config.BillingConfig,
) *Service {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	if cfg.TrialMaxDays <= 0 {
		cfg.TrialMaxDays = 30
	}
	return &Service{
		subs:      subs,
		invoices:  invoices,
		usage:     usage,
		orgs:      orgs,
		policy:    policy,
		audit:     auditLogger,
		gateway:   gateway,
		snapshots: snapshots,
		tx:        tx,
		cfg:       cfg,
	}
}

// Plans 返回套餐目录
func (s *Service) Plans() []entity.Plan {
	return entity.Plans()
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// requireOrganization 检查组织存在
func (s *Service) requireOrganization(ctx context.Context, orgID string) error {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return errors.Database(err, "failed to get organization")
	}
	if org == nil {
		return errors.New(errors.CodeOrganizationNotFound, "organization not found")
	}
	return nil
}

// authorize 校验调用方对组织计费数据的访问权限
// 请求携带租户上下文时，租户必须属于该组织；变更操作拒绝已暂停的租户上下文。
func (s *Service) authorize(ctx context.Context, orgID string, manage bool) error {
	if tenant := authz.TenantFromContext(ctx); tenant != nil {
		if tenant.OrganizationID != orgID {
			return errors.Forbidden("tenant does not belong to this organization")
		}
		if manage && tenant.IsSuspended() {
			return errors.New(errors.CodeTenantSuspended, "tenant is suspended")
		}
	}

	var err error
	if manage {
		_, err = s.policy.RequireOrganizationManager(ctx, orgID)
	} else {
		_, err = s.policy.RequireOrganizationMember(ctx, orgID)
	}
	return err
}
