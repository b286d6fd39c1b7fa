package tenancy

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"saas-tenancy-api/internal/application/audit"
	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/metrics"
	pkgtracer "saas-tenancy-api/pkg/tracer"
	"saas-tenancy-api/pkg/validate"
)

var tracer = otel.Tracer("tenancy")

// TenantCache 租户解析缓存
type TenantCache interface {
	Resolve(ctx context.Context, identifier string, loader func() (*entity.Tenant, error)) (*entity.Tenant, error)
	Invalidate(ctx context.Context, tenant *entity.Tenant, previousDomain string)
}

// CreateTenantInput 创建租户参数
type CreateTenantInput struct {
	OrganizationID string             `json:"organizationId" validate:"required,uuid"`
	Name           string             `json:"name" validate:"required,min=2,max=100"`
	Domain         string             `json:"domain" validate:"required,min=3,max=100,tenantdomain"`
	Subdomain      *string            `json:"subdomain" validate:"omitempty,min=2,max=50,subdomain"`
	Plan           entity.PlanID      `json:"plan" validate:"omitempty,oneof=basic professional enterprise"`
	Features       []string           `json:"features" validate:"omitempty,dive,min=1,max=64"`
	Settings       map[string]any     `json:"settings"`
	Isolation      *IsolationSettings `json:"isolation"`
}

// UpdateTenantInput 部分更新参数，nil 字段保持不变
type UpdateTenantInput struct {
	Name      *string              `json:"name" validate:"omitempty,min=2,max=100"`
	Domain    *string              `json:"domain" validate:"omitempty,min=3,max=100,tenantdomain"`
	Subdomain *string              `json:"subdomain" validate:"omitempty,min=2,max=50,subdomain"`
	Plan      *entity.PlanID       `json:"plan" validate:"omitempty,oneof=basic professional enterprise"`
	Features  *[]string            `json:"features" validate:"omitempty,dive,min=1,max=64"`
	Settings  map[string]any       `json:"settings"`
	Status    *entity.TenantStatus `json:"status" validate:"omitempty,oneof=active inactive suspended"`
}

// ListTenantsInput 租户列表过滤条件
type ListTenantsInput struct {
	OrganizationID string              `json:"organizationId" validate:"omitempty,uuid"`
	Status         entity.TenantStatus `json:"status" validate:"omitempty,oneof=active inactive suspended"`
}

// Service 租户注册表
type Service struct {
	tenants   repository.TenantRepository
	orgs      repository.OrganizationRepository
	isolation *IsolationService
	policy    *authz.Policy
	audit     *audit.Logger
	cache     TenantCache
	tx        repository.Transactor
}

// NewService 创建租户服务，cache 可为 nil
func NewService(
	tenants repository.TenantRepository,
	orgs repository.OrganizationRepository,
	isolation *IsolationService,
	policy *authz.Policy,
	auditLogger *audit.Logger,
	cache TenantCache,
	tx repository.Transactor,
) *Service {
	return &Service{
		tenants:   tenants,
		orgs:      orgs,
		isolation: isolation,
		policy:    policy,
		audit:     auditLogger,
		cache:     cache,
		tx:        tx,
	}
}

func tenantNotFound() *errors.AppError {
	return errors.New(errors.CodeTenantNotFound, "tenant not found")
}

func domainConflict() *errors.AppError {
	return errors.Conflict("domain or subdomain already in use")
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// lookup 按 ID 读取租户，不存在时返回 TenantNotFound
func (s *Service) lookup(ctx context.Context, id string) (*entity.Tenant, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, tenantNotFound()
	}
	tenant, err := s.tenants.GetByID(ctx, parsed.String())
	if err != nil {
		return nil, errors.Database(err, "failed to get tenant")
	}
	if tenant == nil {
		return nil, tenantNotFound()
	}
	return tenant, nil
}

func (s *Service) invalidate(ctx context.Context, tenant *entity.Tenant, previousDomain string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, tenant, previousDomain)
	}
}

func (s *Service) record(operation string, err error) {
	metrics.TenantOperationsTotal.WithLabelValues(operation, metrics.StatusLabel(err)).Inc()
}

// CreateTenant 创建租户并初始化隔离策略
// 检查顺序：参数校验、组织存在、调用方权限、唯一性。
func (s *Service) CreateTenant(ctx context.Context, in CreateTenantInput) (tenant *entity.Tenant, err error) {
	ctx, span := tracer.Start(ctx, "tenancy.CreateTenant")
	defer span.End()
	defer func() { s.record("create", err) }()

	in.Domain = normalizeDomain(in.Domain)
	if in.Subdomain != nil {
		sub := normalizeDomain(*in.Subdomain)
		in.Subdomain = &sub
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	org, err := s.orgs.GetByID(ctx, in.OrganizationID)
	if err != nil {
		return nil, errors.Database(err, "failed to get organization")
	}
	if org == nil {
		return nil, errors.New(errors.CodeOrganizationNotFound, "organization not found")
	}

	actor, err := s.policy.RequireOrganizationManager(ctx, org.ID)
	if err != nil {
		return nil, err
	}

	tenant = entity.NewTenant(org.ID, strings.TrimSpace(in.Name), in.Domain, in.Plan)
	tenant.Subdomain = in.Subdomain
	tenant.CreatedBy = actor.ID
	if in.Features != nil {
		tenant.Features = pq.StringArray(in.Features)
	}
	if in.Settings != nil {
		tenant.Settings = datatypes.JSONMap(in.Settings)
	}

	var settings IsolationSettings
	if in.Isolation != nil {
		settings = *in.Isolation
	}

	var policy *entity.TenantIsolationPolicy
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.tenants.Create(ctx, tenant); err != nil {
			if stderrors.Is(err, repository.ErrDuplicate) {
				return domainConflict()
			}
			return errors.Database(err, "failed to create tenant")
		}
		var rerr error
		policy, rerr = s.isolation.record(ctx, tenant.ID, settings)
		return rerr
	})
	if err != nil {
		return nil, pkgtracer.Fail(span, err)
	}
	s.isolation.provision(ctx, policy)

	span.SetAttributes(pkgtracer.TenantAttr(tenant.ID), pkgtracer.OrganizationAttr(org.ID))
	logger.Info(ctx, "tenant created", "tenant_id", tenant.ID, "domain", tenant.Domain)
	s.audit.Log(ctx, entity.AuditTenantCreated, tenant.ID, map[string]any{
		"organizationId": org.ID,
		"name":           tenant.Name,
		"domain":         tenant.Domain,
		"plan":           string(tenant.Plan),
	})
	return tenant, nil
}

// GetTenant 获取租户，调用方需通过租户访问校验
func (s *Service) GetTenant(ctx context.Context, id string) (*entity.Tenant, error) {
	ctx, span := tracer.Start(ctx, "tenancy.GetTenant", trace.WithAttributes(pkgtracer.TenantAttr(id)))
	defer span.End()

	tenant, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// GetTenantByDomain 按域名获取租户
func (s *Service) GetTenantByDomain(ctx context.Context, domain string) (*entity.Tenant, error) {
	ctx, span := tracer.Start(ctx, "tenancy.GetTenantByDomain")
	defer span.End()

	tenant, err := s.tenants.GetByDomain(ctx, normalizeDomain(domain))
	if err != nil {
		return nil, errors.Database(err, "failed to get tenant")
	}
	if tenant == nil {
		return nil, tenantNotFound()
	}
	if err := s.requireAccess(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// GetIsolationPolicy 获取租户隔离策略
func (s *Service) GetIsolationPolicy(ctx context.Context, tenantID string) (*entity.TenantIsolationPolicy, error) {
	ctx, span := tracer.Start(ctx, "tenancy.GetIsolationPolicy", trace.WithAttributes(pkgtracer.TenantAttr(tenantID)))
	defer span.End()

	tenant, err := s.lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, tenant); err != nil {
		return nil, err
	}
	return s.isolation.Get(ctx, tenant.ID)
}

// requireAccess 要求当前调用方可访问租户
func (s *Service) requireAccess(ctx context.Context, tenant *entity.Tenant) error {
	actor, err := s.policy.CurrentUser(ctx)
	if err != nil {
		return err
	}
	ok, err := s.policy.CanAccessTenant(ctx, tenant, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Forbidden("access to tenant denied")
	}
	return nil
}

// ValidateTenantAccess 用户为全局管理员或租户所属组织成员时返回 true
func (s *Service) ValidateTenantAccess(ctx context.Context, tenantID, userID string) (bool, error) {
	tenant, err := s.lookup(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return s.policy.CanAccessTenant(ctx, tenant, userID)
}

// CheckTenantAccess 对外暴露的访问校验，只允许查询本人或由全局管理员查询
func (s *Service) CheckTenantAccess(ctx context.Context, tenantID, userID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "tenancy.CheckTenantAccess", trace.WithAttributes(pkgtracer.TenantAttr(tenantID)))
	defer span.End()

	if err := validate.Var("userId", userID, "required,uuid"); err != nil {
		return false, err
	}
	tenant, err := s.lookup(ctx, tenantID)
	if err != nil {
		return false, err
	}
	actor, err := s.policy.CurrentUser(ctx)
	if err != nil {
		return false, err
	}
	if actor.ID != userID && !actor.IsAdmin() {
		return false, errors.New(errors.CodePermissionDenied, "only administrators can check access for other users")
	}
	return s.policy.CanAccessTenant(ctx, tenant, userID)
}

// UpdateTenant 部分更新租户
func (s *Service) UpdateTenant(ctx context.Context, id string, in UpdateTenantInput) (tenant *entity.Tenant, err error) {
	ctx, span := tracer.Start(ctx, "tenancy.UpdateTenant", trace.WithAttributes(pkgtracer.TenantAttr(id)))
	defer span.End()
	defer func() { s.record("update", err) }()

	if in.Domain != nil {
		d := normalizeDomain(*in.Domain)
		in.Domain = &d
	}
	if in.Subdomain != nil {
		sub := normalizeDomain(*in.Subdomain)
		in.Subdomain = &sub
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	tenant, err = s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.RequireOrganizationManager(ctx, tenant.OrganizationID); err != nil {
		return nil, err
	}

	previousDomain := tenant.Domain
	now := time.Now().UTC()
	changes := applyTenantUpdate(tenant, in, now)
	if len(changes) == 0 {
		return tenant, nil
	}
	tenant.UpdatedAt = now

	if err := s.tenants.Update(ctx, tenant, changedColumns(changes)...); err != nil {
		switch {
		case stderrors.Is(err, repository.ErrDuplicate):
			return nil, domainConflict()
		case stderrors.Is(err, repository.ErrStaleState):
			return nil, tenantNotFound()
		}
		return nil, pkgtracer.Fail(span, errors.Database(err, "failed to update tenant"))
	}

	s.invalidate(ctx, tenant, previousDomain)
	s.audit.Log(ctx, entity.AuditTenantUpdated, tenant.ID, map[string]any{"changes": changes})
	return s.reload(ctx, tenant)
}

// changedColumns 变更字段映射为需要写入的列，状态变更连带暂停原因与时间
func changedColumns(changes []string) []string {
	columns := make([]string, 0, len(changes)+2)
	for _, change := range changes {
		if change == entity.TenantColumnStatus {
			columns = append(columns, entity.TenantStatusColumns...)
			continue
		}
		columns = append(columns, change)
	}
	return columns
}

// reload 读取写入后的完整记录，并发更新的其他列以库中值为准
func (s *Service) reload(ctx context.Context, tenant *entity.Tenant) (*entity.Tenant, error) {
	fresh, err := s.tenants.GetByID(ctx, tenant.ID)
	if err != nil {
		return nil, errors.Database(err, "failed to get tenant")
	}
	if fresh == nil {
		return nil, tenantNotFound()
	}
	return fresh, nil
}

// applyTenantUpdate 应用部分更新并返回变更字段
func applyTenantUpdate(t *entity.Tenant, in UpdateTenantInput, now time.Time) []string {
	changes := make([]string, 0, 7)
	if in.Name != nil && strings.TrimSpace(*in.Name) != t.Name {
		t.Name = strings.TrimSpace(*in.Name)
		changes = append(changes, entity.TenantColumnName)
	}
	if in.Domain != nil && *in.Domain != t.Domain {
		t.Domain = *in.Domain
		changes = append(changes, entity.TenantColumnDomain)
	}
	if in.Subdomain != nil && *in.Subdomain != t.SubdomainValue() {
		sub := *in.Subdomain
		t.Subdomain = &sub
		changes = append(changes, entity.TenantColumnSubdomain)
	}
	if in.Plan != nil && *in.Plan != t.Plan {
		t.Plan = *in.Plan
		changes = append(changes, entity.TenantColumnPlan)
	}
	if in.Features != nil {
		t.Features = pq.StringArray(append([]string{}, (*in.Features)...))
		changes = append(changes, entity.TenantColumnFeatures)
	}
	if in.Settings != nil {
		t.Settings = datatypes.JSONMap(in.Settings)
		changes = append(changes, entity.TenantColumnSettings)
	}
	if in.Status != nil && *in.Status != t.Status {
		switch *in.Status {
		case entity.TenantStatusSuspended:
			t.Suspend(t.SuspendedReason, now)
		case entity.TenantStatusActive:
			t.Reactivate(now)
		default:
			t.Status = *in.Status
			t.SuspendedReason = ""
			t.SuspendedAt = nil
		}
		changes = append(changes, entity.TenantColumnStatus)
	}
	return changes
}

// DeleteTenant 删除租户并拆除隔离作用域
func (s *Service) DeleteTenant(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "tenancy.DeleteTenant", trace.WithAttributes(pkgtracer.TenantAttr(id)))
	defer span.End()
	defer func() { s.record("delete", err) }()

	tenant, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.policy.RequireOrganizationManager(ctx, tenant.OrganizationID); err != nil {
		return err
	}

	deleted, err := s.tenants.Delete(ctx, tenant.ID)
	if err != nil {
		return pkgtracer.Fail(span, errors.Database(err, "failed to delete tenant"))
	}
	if !deleted {
		return tenantNotFound()
	}

	if err := s.isolation.Teardown(ctx, tenant.ID); err != nil {
		// 租户已删除，隔离策略残留由下次拆除清理
		logger.Error(ctx, "failed to tear down tenant isolation", err, "tenant_id", tenant.ID)
	}

	s.invalidate(ctx, tenant, "")
	s.audit.Log(ctx, entity.AuditTenantDeleted, tenant.ID, map[string]any{
		"organizationId": tenant.OrganizationID,
		"domain":         tenant.Domain,
	})
	return nil
}

// SuspendTenant 暂停租户，重复调用覆盖原因与时间
func (s *Service) SuspendTenant(ctx context.Context, id, reason string) (tenant *entity.Tenant, err error) {
	ctx, span := tracer.Start(ctx, "tenancy.SuspendTenant", trace.WithAttributes(pkgtracer.TenantAttr(id)))
	defer span.End()
	defer func() { s.record("suspend", err) }()

	reason = strings.TrimSpace(reason)
	if err := validate.Var("reason", reason, "required,max=500"); err != nil {
		return nil, err
	}

	tenant, err = s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.RequireOrganizationManager(ctx, tenant.OrganizationID); err != nil {
		return nil, err
	}

	tenant.Suspend(reason, time.Now().UTC())
	if err := s.saveStatus(ctx, tenant); err != nil {
		return nil, pkgtracer.Fail(span, err)
	}

	s.audit.Log(ctx, entity.AuditTenantSuspended, tenant.ID, map[string]any{"reason": reason})
	return s.reload(ctx, tenant)
}

// ReactivateTenant 恢复已暂停的租户
func (s *Service) ReactivateTenant(ctx context.Context, id string) (tenant *entity.Tenant, err error) {
	ctx, span := tracer.Start(ctx, "tenancy.ReactivateTenant", trace.WithAttributes(pkgtracer.TenantAttr(id)))
	defer span.End()
	defer func() { s.record("reactivate", err) }()

	tenant, err = s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.RequireOrganizationManager(ctx, tenant.OrganizationID); err != nil {
		return nil, err
	}
	if !tenant.IsSuspended() {
		return nil, errors.Conflict("tenant is not suspended")
	}

	previousReason := tenant.SuspendedReason
	tenant.Reactivate(time.Now().UTC())
	if err := s.saveStatus(ctx, tenant); err != nil {
		return nil, pkgtracer.Fail(span, err)
	}

	s.audit.Log(ctx, entity.AuditTenantReactivated, tenant.ID, map[string]any{"previousReason": previousReason})
	return s.reload(ctx, tenant)
}

// saveStatus 只写入状态相关列并失效缓存
func (s *Service) saveStatus(ctx context.Context, tenant *entity.Tenant) error {
	if err := s.tenants.Update(ctx, tenant, entity.TenantStatusColumns...); err != nil {
		if stderrors.Is(err, repository.ErrStaleState) {
			return tenantNotFound()
		}
		return errors.Database(err, "failed to update tenant")
	}
	s.invalidate(ctx, tenant, "")
	return nil
}

// ListTenants 列出调用方可见的租户，全局管理员可见全部
func (s *Service) ListTenants(ctx context.Context, in ListTenantsInput, pagination repository.Pagination) (*repository.PagedResult[*entity.Tenant], error) {
	ctx, span := tracer.Start(ctx, "tenancy.ListTenants")
	defer span.End()

	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	actor, err := s.policy.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	filter := repository.TenantFilter{Status: in.Status}
	switch {
	case in.OrganizationID != "":
		ok, err := s.policy.IsOrganizationMember(ctx, actor, in.OrganizationID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Forbidden("access to organization denied")
		}
		filter.OrganizationIDs = []string{in.OrganizationID}
		filter.Restricted = true
	case !actor.IsAdmin():
		ids, err := s.orgs.ListOrganizationIDsByUser(ctx, actor.ID)
		if err != nil {
			return nil, errors.Database(err, "failed to list organizations")
		}
		filter.OrganizationIDs = ids
		filter.Restricted = true
	}

	result, err := s.tenants.List(ctx, filter, pagination)
	if err != nil {
		return nil, pkgtracer.Fail(span, errors.Database(err, "failed to list tenants"))
	}
	return result, nil
}

// ResolveTenant 按租户 ID 或域名解析租户，供请求上下文中间件使用
func (s *Service) ResolveTenant(ctx context.Context, identifier string) (*entity.Tenant, error) {
	ctx, span := tracer.Start(ctx, "tenancy.ResolveTenant")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.InvalidParam("tenant identifier is empty")
	}
	byID := false
	if id, perr := uuid.Parse(identifier); perr == nil {
		identifier, byID = id.String(), true
	} else {
		identifier = normalizeDomain(identifier)
	}

	loader := func() (*entity.Tenant, error) {
		var (
			tenant *entity.Tenant
			err    error
		)
		if byID {
			tenant, err = s.tenants.GetByID(ctx, identifier)
		} else {
			tenant, err = s.tenants.GetByDomain(ctx, identifier)
		}
		if err != nil {
			return nil, errors.Database(err, "failed to resolve tenant")
		}
		if tenant == nil {
			return nil, tenantNotFound()
		}
		return tenant, nil
	}

	if s.cache == nil {
		tenant, err := loader()
		metrics.TenantResolveTotal.WithLabelValues(metrics.StatusLabel(err)).Inc()
		return tenant, err
	}
	return s.cache.Resolve(ctx, identifier, loader)
}

// Isolation 返回隔离策略服务
func (s *Service) Isolation() *IsolationService {
	return s.isolation
}
