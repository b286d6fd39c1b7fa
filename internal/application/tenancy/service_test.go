package tenancy

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saas-tenancy-api/internal/application/audit"
	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/internal/infrastructure/persistence/memory"
	"saas-tenancy-api/pkg/errors"
)

type fixture struct {
	store    *memory.Store
	svc      *Service
	org      *entity.Organization
	admin    *entity.User
	owner    *entity.User
	member   *entity.User
	outsider *entity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	f := &fixture{store: store}
	f.admin = entity.NewUser("admin@example.com", "Ada", "Admin", entity.UserRoleAdmin)
	f.owner = entity.NewUser("owner@example.com", "Owen", "Owner", entity.UserRoleUser)
	f.member = entity.NewUser("member@example.com", "Mia", "Member", entity.UserRoleUser)
	f.outsider = entity.NewUser("outsider@example.com", "Oscar", "Out", entity.UserRoleManager)
	for _, u := range []*entity.User{f.admin, f.owner, f.member, f.outsider} {
		require.NoError(t, store.Users().Create(ctx, u))
	}

	f.org = entity.NewOrganization("Acme", f.owner.ID)
	require.NoError(t, store.Organizations().Create(ctx, f.org))
	require.NoError(t, store.Organizations().AddMember(ctx, &entity.Membership{OrganizationID: f.org.ID, UserID: f.owner.ID, Role: entity.MembershipRoleOwner}))
	require.NoError(t, store.Organizations().AddMember(ctx, &entity.Membership{OrganizationID: f.org.ID, UserID: f.member.ID, Role: entity.MembershipRoleMember}))

	policy := authz.NewPolicy(store.Users(), store.Organizations())
	isolation := NewIsolationService(store.IsolationPolicies(), nil, config.IsolationConfig{
		EncryptionRequired:  true,
		RetentionPeriodDays: 365,
		DataResidency:       "us",
	})
	f.svc = NewService(store.Tenants(), store.Organizations(), isolation, policy,
		audit.NewLogger(store.Audit(), nil), nil, memory.NewTransactor())
	return f
}

func as(u *entity.User) context.Context {
	return authz.WithActor(context.Background(), authz.Actor{UserID: u.ID, Email: u.Email, Role: u.Role})
}

func (f *fixture) createTenant(t *testing.T, domain string) *entity.Tenant {
	t.Helper()
	tenant, err := f.svc.CreateTenant(as(f.owner), CreateTenantInput{
		OrganizationID: f.org.ID,
		Name:           "Acme Corp",
		Domain:         domain,
	})
	require.NoError(t, err)
	return tenant
}

func TestCreateTenant_Scenario(t *testing.T) {
	f := newFixture(t)

	tenant := f.createTenant(t, "acme.example.com")
	assert.Equal(t, entity.TenantStatusActive, tenant.Status)
	assert.Equal(t, entity.PlanBasic, tenant.Plan)
	assert.Equal(t, f.owner.ID, tenant.CreatedBy)

	_, err := f.svc.CreateTenant(as(f.owner), CreateTenantInput{
		OrganizationID: f.org.ID,
		Name:           "Acme Copy",
		Domain:         "acme.example.com",
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	page, err := f.svc.ListTenants(as(f.admin), ListTenantsInput{}, repository.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	suspended, err := f.svc.SuspendTenant(as(f.owner), tenant.ID, "non-payment")
	require.NoError(t, err)
	assert.Equal(t, entity.TenantStatusSuspended, suspended.Status)
	assert.Equal(t, "non-payment", suspended.SuspendedReason)
	assert.NotNil(t, suspended.SuspendedAt)

	ok, err := f.svc.ValidateTenantAccess(context.Background(), tenant.ID, f.outsider.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.ValidateTenantAccess(context.Background(), tenant.ID, f.admin.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateTenant_RoundTrip(t *testing.T) {
	f := newFixture(t)
	sub := "acme"
	retention := 30

	created, err := f.svc.CreateTenant(as(f.owner), CreateTenantInput{
		OrganizationID: f.org.ID,
		Name:           "Acme Corp",
		Domain:         "Acme.Example.com ",
		Subdomain:      &sub,
		Plan:           entity.PlanProfessional,
		Features:       []string{"sso", "audit"},
		Settings:       map[string]any{"locale": "en"},
		Isolation:      &IsolationSettings{RetentionPeriodDays: &retention, DataResidency: "eu"},
	})
	require.NoError(t, err)

	got, err := f.svc.GetTenant(as(f.member), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme.example.com", got.Domain)
	assert.Equal(t, "Acme Corp", got.Name)
	assert.Equal(t, "acme", got.SubdomainValue())
	assert.Equal(t, entity.PlanProfessional, got.Plan)
	assert.ElementsMatch(t, []string{"sso", "audit"}, []string(got.Features))
	assert.Equal(t, "en", got.Settings["locale"])
	assert.Equal(t, entity.TenantStatusActive, got.Status)

	again, err := f.svc.GetTenant(as(f.member), created.ID)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	policy, err := f.svc.Isolation().Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, policy.EncryptionRequired)
	assert.Equal(t, 30, policy.RetentionPeriodDays)
	assert.Equal(t, "eu", policy.DataResidency)

	events := f.store.AuditEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, entity.AuditTenantCreated, events[len(events)-1].Action)
	assert.Equal(t, f.owner.ID, *events[len(events)-1].UserID)
}

func TestCreateTenant_CheckOrder(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		ctx  context.Context
		in   CreateTenantInput
		code errors.ErrorCode
	}{
		{
			name: "validation first",
			ctx:  as(f.outsider),
			in:   CreateTenantInput{OrganizationID: "00000000-0000-0000-0000-000000000000", Name: "x", Domain: "bad"},
			code: errors.CodeInvalidParam,
		},
		{
			name: "missing organization before authorization",
			ctx:  as(f.outsider),
			in:   CreateTenantInput{OrganizationID: "00000000-0000-0000-0000-000000000000", Name: "Acme", Domain: "acme.example.com"},
			code: errors.CodeOrganizationNotFound,
		},
		{
			name: "non-manager forbidden",
			ctx:  as(f.member),
			in:   CreateTenantInput{OrganizationID: f.org.ID, Name: "Acme", Domain: "acme.example.com"},
			code: errors.CodeForbidden,
		},
		{
			name: "unauthenticated",
			ctx:  context.Background(),
			in:   CreateTenantInput{OrganizationID: f.org.ID, Name: "Acme", Domain: "acme.example.com"},
			code: errors.CodeUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTenant(tt.ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.AsAppError(err).Code)
		})
	}
}

func TestCreateTenant_ConcurrentSameDomain(t *testing.T) {
	f := newFixture(t)

	const workers = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateTenant(as(f.owner), CreateTenantInput{
				OrganizationID: f.org.ID,
				Name:           "Racer",
				Domain:         "race.example.com",
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.HasCode(err, errors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, workers-1, conflicts.Load())
}

func TestValidateTenantAccess_AcrossTransitions(t *testing.T) {
	f := newFixture(t)
	tenant := f.createTenant(t, "acme.example.com")

	check := func() {
		cases := map[string]bool{
			f.admin.ID:    true,
			f.owner.ID:    true,
			f.member.ID:   true,
			f.outsider.ID: false,
			"unknown-id":  false,
		}
		for userID, want := range cases {
			ok, err := f.svc.ValidateTenantAccess(context.Background(), tenant.ID, userID)
			require.NoError(t, err)
			assert.Equal(t, want, ok, userID)
		}
	}

	check()
	_, err := f.svc.SuspendTenant(as(f.admin), tenant.ID, "billing")
	require.NoError(t, err)
	check()
	_, err = f.svc.ReactivateTenant(as(f.admin), tenant.ID)
	require.NoError(t, err)
	check()

	_, err = f.svc.ValidateTenantAccess(context.Background(), "00000000-0000-0000-0000-000000000000", f.admin.ID)
	assert.True(t, errors.HasCode(err, errors.CodeTenantNotFound))
}

func TestGetTenant_AccessDenied(t *testing.T) {
	f := newFixture(t)
	tenant := f.createTenant(t, "acme.example.com")

	_, err := f.svc.GetTenant(as(f.outsider), tenant.ID)
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	_, err = f.svc.GetTenantByDomain(as(f.outsider), "acme.example.com")
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	_, err = f.svc.GetTenant(as(f.outsider), "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.HasCode(err, errors.CodeTenantNotFound), "existence is checked before access")

	got, err := f.svc.GetTenantByDomain(as(f.admin), "ACME.example.com")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)
}

func TestUpdateTenant(t *testing.T) {
	f := newFixture(t)
	tenant := f.createTenant(t, "acme.example.com")
	f.createTenant(t, "other.example.com")

	name := "Acme Renamed"
	inactive := entity.TenantStatusInactive
	updated, err := f.svc.UpdateTenant(as(f.owner), tenant.ID, UpdateTenantInput{Name: &name, Status: &inactive})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, entity.TenantStatusInactive, updated.Status)

	taken := "other.example.com"
	_, err = f.svc.UpdateTenant(as(f.owner), tenant.ID, UpdateTenantInput{Domain: &taken})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	_, err = f.svc.UpdateTenant(as(f.member), tenant.ID, UpdateTenantInput{Name: &name})
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	bad := "x"
	_, err = f.svc.UpdateTenant(as(f.owner), tenant.ID, UpdateTenantInput{Name: &bad})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))

	stored, err := f.store.Tenants().GetByID(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme.example.com", stored.Domain)
}

func TestSuspendReactivate(t *testing.T) {
	f := newFixture(t)
	tenant := f.createTenant(t, "acme.example.com")

	_, err := f.svc.SuspendTenant(as(f.owner), tenant.ID, "")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))

	_, err = f.svc.ReactivateTenant(as(f.owner), tenant.ID)
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	first, err := f.svc.SuspendTenant(as(f.owner), tenant.ID, "first")
	require.NoError(t, err)
	second, err := f.svc.SuspendTenant(as(f.owner), tenant.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", second.SuspendedReason)
	assert.False(t, second.SuspendedAt.Before(*first.SuspendedAt))

	reactivated, err := f.svc.ReactivateTenant(as(f.owner), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TenantStatusActive, reactivated.Status)
	assert.Empty(t, reactivated.SuspendedReason)
	assert.Nil(t, reactivated.SuspendedAt)

	_, err = f.svc.SuspendTenant(as(f.member), tenant.ID, "nope")
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))
}

func TestDeleteTenant(t *testing.T) {
	f := newFixture(t)
	tenant := f.createTenant(t, "acme.example.com")

	require.Error(t, f.svc.DeleteTenant(as(f.member), tenant.ID))
	require.NoError(t, f.svc.DeleteTenant(as(f.owner), tenant.ID))

	_, err := f.svc.Isolation().Get(context.Background(), tenant.ID)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))

	err = f.svc.DeleteTenant(as(f.owner), tenant.ID)
	assert.True(t, errors.HasCode(err, errors.CodeTenantNotFound))

	// 拆除对已删除的作用域是空操作
	assert.NoError(t, f.svc.Isolation().Teardown(context.Background(), tenant.ID))

	// 删除后域名可被重新使用
	f.createTenant(t, "acme.example.com")
}

func TestListTenants_Visibility(t *testing.T) {
	f := newFixture(t)
	f.createTenant(t, "acme.example.com")

	otherOrg := entity.NewOrganization("Other", f.admin.ID)
	require.NoError(t, f.store.Organizations().Create(context.Background(), otherOrg))
	_, err := f.svc.CreateTenant(as(f.admin), CreateTenantInput{OrganizationID: otherOrg.ID, Name: "Other", Domain: "other.example.com"})
	require.NoError(t, err)

	all, err := f.svc.ListTenants(as(f.admin), ListTenantsInput{}, repository.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)

	mine, err := f.svc.ListTenants(as(f.member), ListTenantsInput{}, repository.NewPagination(1, 20))
	require.NoError(t, err)
	require.EqualValues(t, 1, mine.Total)
	assert.Equal(t, "acme.example.com", mine.Items[0].Domain)

	none, err := f.svc.ListTenants(as(f.outsider), ListTenantsInput{}, repository.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 0, none.Total)

	_, err = f.svc.ListTenants(as(f.member), ListTenantsInput{OrganizationID: otherOrg.ID}, repository.NewPagination(1, 20))
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))
}

func TestResolveTenant(t *testing.T) {
	f := newFixture(t)
	tenant := f.createTenant(t, "acme.example.com")
	ctx := context.Background()

	byID, err := f.svc.ResolveTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, byID.ID)

	byDomain, err := f.svc.ResolveTenant(ctx, "acme.example.com")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, byDomain.ID)

	_, err = f.svc.ResolveTenant(ctx, "missing.example.com")
	assert.True(t, errors.HasCode(err, errors.CodeTenantNotFound))

	_, err = f.svc.ResolveTenant(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.HasCode(err, errors.CodeTenantNotFound))
}

func TestResolveTenant_CaseInsensitiveIdentifiers(t *testing.T) {
	f := newFixture(t)
	tenant := f.createTenant(t, "acme.example.com")
	ctx := context.Background()

	for _, identifier := range []string{"ACME.Example.com", " acme.example.com ", strings.ToUpper(tenant.ID)} {
		got, err := f.svc.ResolveTenant(ctx, identifier)
		require.NoError(t, err, identifier)
		assert.Equal(t, tenant.ID, got.ID)
	}

	got, err := f.svc.GetTenant(as(f.member), strings.ToUpper(tenant.ID))
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)

	require.NoError(t, f.svc.DeleteTenant(as(f.owner), strings.ToUpper(tenant.ID)))
	_, err = f.svc.ResolveTenant(ctx, "ACME.Example.com")
	assert.True(t, errors.HasCode(err, errors.CodeTenantNotFound))
}

// gatedTenants 让改名写入停在写库前，模拟与暂停交错执行
type gatedTenants struct {
	repository.TenantRepository
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTenants) Update(ctx context.Context, tenant *entity.Tenant, columns ...string) error {
	if slices.Contains(columns, entity.TenantColumnName) {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.TenantRepository.Update(ctx, tenant, columns...)
}

func TestUpdateTenant_DoesNotRevertConcurrentSuspend(t *testing.T) {
	f := newFixture(t)
	tenant := f.createTenant(t, "acme.example.com")

	gated := &gatedTenants{
		TenantRepository: f.store.Tenants(),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	svc := NewService(gated, f.store.Organizations(), f.svc.Isolation(),
		authz.NewPolicy(f.store.Users(), f.store.Organizations()),
		audit.NewLogger(f.store.Audit(), nil), nil, memory.NewTransactor())

	name := "Acme Renamed"
	done := make(chan error, 1)
	go func() {
		_, err := svc.UpdateTenant(as(f.owner), tenant.ID, UpdateTenantInput{Name: &name})
		done <- err
	}()

	<-gated.entered
	_, err := svc.SuspendTenant(as(f.owner), tenant.ID, "chargeback")
	require.NoError(t, err)
	close(gated.release)
	require.NoError(t, <-done)

	stored, err := f.store.Tenants().GetByID(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, name, stored.Name)
	assert.Equal(t, entity.TenantStatusSuspended, stored.Status)
	assert.Equal(t, "chargeback", stored.SuspendedReason)
}

type stubProvisioner struct {
	provisioned []string
	tornDown    []string
}

func (p *stubProvisioner) ScopePrefix(tenantID string) string { return "tenants/" + tenantID + "/" }

func (p *stubProvisioner) Provision(ctx context.Context, policy *entity.TenantIsolationPolicy) error {
	p.provisioned = append(p.provisioned, policy.TenantID)
	return nil
}

func (p *stubProvisioner) Teardown(ctx context.Context, tenantID string) error {
	p.tornDown = append(p.tornDown, tenantID)
	return nil
}

func TestIsolationService_InitializeIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	prov := &stubProvisioner{}
	svc := NewIsolationService(store.IsolationPolicies(), prov, config.IsolationConfig{RetentionPeriodDays: 90, DataResidency: "us"})
	ctx := context.Background()

	first, err := svc.Initialize(ctx, "t-1", IsolationSettings{})
	require.NoError(t, err)
	assert.Equal(t, 90, first.RetentionPeriodDays)
	assert.Equal(t, "tenants/t-1/", first.StoragePrefix)

	enc := true
	second, err := svc.Initialize(ctx, "t-1", IsolationSettings{EncryptionRequired: &enc, DataResidency: "eu"})
	require.NoError(t, err)
	assert.True(t, second.EncryptionRequired)
	assert.Equal(t, "eu", second.DataResidency)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, []string{"t-1", "t-1"}, prov.provisioned)

	require.NoError(t, svc.Teardown(ctx, "t-1"))
	require.NoError(t, svc.Teardown(ctx, "t-1"))
	assert.Equal(t, []string{"t-1", "t-1"}, prov.tornDown)
}

func TestGetIsolationPolicy(t *testing.T) {
	f := newFixture(t)
	tenant := f.createTenant(t, "acme.example.com")

	policy, err := f.svc.GetIsolationPolicy(as(f.member), tenant.ID)
	require.NoError(t, err)
	assert.True(t, policy.EncryptionRequired)
	assert.Equal(t, 365, policy.RetentionPeriodDays)
	assert.Equal(t, "us", policy.DataResidency)

	_, err = f.svc.GetIsolationPolicy(as(f.outsider), tenant.ID)
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))
}

func TestCheckTenantAccess(t *testing.T) {
	f := newFixture(t)
	tenant := f.createTenant(t, "check.example.com")

	ok, err := f.svc.CheckTenantAccess(as(f.member), tenant.ID, f.member.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.CheckTenantAccess(as(f.outsider), tenant.ID, f.outsider.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.CheckTenantAccess(as(f.member), tenant.ID, f.outsider.ID)
	assert.True(t, errors.HasCode(err, errors.CodePermissionDenied))

	ok, err = f.svc.CheckTenantAccess(as(f.admin), tenant.ID, f.owner.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.CheckTenantAccess(as(f.admin), "00000000-0000-0000-0000-000000000000", f.owner.ID)
	assert.True(t, errors.HasCode(err, errors.CodeTenantNotFound))
}
