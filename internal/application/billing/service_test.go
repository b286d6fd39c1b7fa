package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saas-tenancy-api/internal/application/audit"
	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/internal/infrastructure/payment"
	"saas-tenancy-api/internal/infrastructure/persistence/memory"
	"saas-tenancy-api/pkg/errors"
)

type snapshotStore struct {
	mu    sync.Mutex
	saved map[string]*entity.UsageSnapshot
}

func (s *snapshotStore) Save(ctx context.Context, snapshot *entity.UsageSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[snapshot.OrganizationID] = snapshot
	return nil
}

func (s *snapshotStore) Latest(ctx context.Context, orgID string) (*entity.UsageSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[orgID], nil
}

type fixture struct {
	store     *memory.Store
	svc       *Service
	snapshots *snapshotStore
	org       *entity.Organization
	owner     *entity.User
	member    *entity.User
	outsider  *entity.User
}

func newFixture(t *testing.T, gateway payment.Gateway, cfg config.BillingConfig) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	f := &fixture{store: store, snapshots: &snapshotStore{saved: map[string]*entity.UsageSnapshot{}}}
	f.owner = entity.NewUser("owner@example.com", "Owen", "Owner", entity.UserRoleUser)
	f.member = entity.NewUser("member@example.com", "Mia", "Member", entity.UserRoleUser)
	f.outsider = entity.NewUser("outsider@example.com", "Oscar", "Out", entity.UserRoleUser)
	for _, u := range []*entity.User{f.owner, f.member, f.outsider} {
		require.NoError(t, store.Users().Create(ctx, u))
	}
	f.org = entity.NewOrganization("Acme", f.owner.ID)
	require.NoError(t, store.Organizations().Create(ctx, f.org))
	require.NoError(t, store.Organizations().AddMember(ctx, &entity.Membership{OrganizationID: f.org.ID, UserID: f.owner.ID, Role: entity.MembershipRoleOwner}))
	require.NoError(t, store.Organizations().AddMember(ctx, &entity.Membership{OrganizationID: f.org.ID, UserID: f.member.ID, Role: entity.MembershipRoleMember}))

	if gateway == nil {
		gateway = payment.NewStubGateway(0)
	}
	f.svc = NewService(store.Subscriptions(), store.Invoices(), store.Usage(), store.Organizations(),
		authz.NewPolicy(store.Users(), store.Organizations()),
		audit.NewLogger(store.Audit(), nil), gateway, f.snapshots, memory.NewTransactor(), cfg)
	return f
}

func as(u *entity.User) context.Context {
	return authz.WithActor(context.Background(), authz.Actor{UserID: u.ID, Email: u.Email, Role: u.Role})
}

func (f *fixture) subscribe(t *testing.T, in CreateSubscriptionInput) *entity.Subscription {
	t.Helper()
	sub, err := f.svc.CreateSubscription(as(f.owner), f.org.ID, in)
	require.NoError(t, err)
	return sub
}

func TestBilling_Scenario(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})

	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanProfessional, BillingCycle: entity.BillingCycleYearly})
	assert.Equal(t, entity.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "USD", sub.Currency)

	plan, ok := entity.LookupPlan(sub.Plan)
	require.True(t, ok)
	assert.True(t, plan.Price(sub.BillingCycle).Equal(decimal.NewFromInt(990)))

	invoice, err := f.svc.CreateInvoice(as(f.owner), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusPending, invoice.Status)
	assert.True(t, invoice.Total.Equal(decimal.NewFromInt(990)))
	assert.True(t, sub.StartedAt.Equal(invoice.PeriodStart))
	assert.True(t, sub.StartedAt.AddDate(1, 0, 0).Equal(invoice.PeriodEnd))

	result, err := f.svc.ProcessPayment(as(f.owner), invoice.ID, PaymentInput{PaymentMethod: "fail"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "card_declined", result.FailureReason)
	assert.Equal(t, entity.InvoiceStatusFailed, result.Invoice.Status)

	stored, err := f.svc.GetInvoice(as(f.member), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusFailed, stored.Status)
	assert.Equal(t, "fail", stored.PaymentMethod)
}

func TestProcessPayment_RetryAfterFailure(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})
	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic})
	invoice, err := f.svc.CreateInvoice(as(f.owner), sub.ID)
	require.NoError(t, err)

	_, err = f.svc.ProcessPayment(as(f.owner), invoice.ID, PaymentInput{PaymentMethod: "declined"})
	require.NoError(t, err)

	amount := decimal.NewFromInt(29)
	result, err := f.svc.ProcessPayment(as(f.owner), invoice.ID, PaymentInput{PaymentMethod: "card", Amount: &amount, Currency: "usd"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.TransactionID)
	assert.Equal(t, entity.InvoiceStatusPaid, result.Invoice.Status)
	assert.NotNil(t, result.Invoice.PaidAt)
	assert.Empty(t, result.Invoice.FailureReason)

	_, err = f.svc.ProcessPayment(as(f.owner), invoice.ID, PaymentInput{PaymentMethod: "card"})
	assert.True(t, errors.HasCode(err, errors.CodeInvoiceAlreadyPaid))
}

func TestProcessPayment_Validation(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})
	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic})
	invoice, err := f.svc.CreateInvoice(as(f.owner), sub.ID)
	require.NoError(t, err)

	wrong := decimal.NewFromInt(10)
	tests := []struct {
		name string
		id   string
		in   PaymentInput
		ctx  context.Context
		code errors.ErrorCode
	}{
		{"missing method", invoice.ID, PaymentInput{}, as(f.owner), errors.CodeInvalidParam},
		{"amount mismatch", invoice.ID, PaymentInput{PaymentMethod: "card", Amount: &wrong}, as(f.owner), errors.CodeInvalidParam},
		{"currency mismatch", invoice.ID, PaymentInput{PaymentMethod: "card", Currency: "EUR"}, as(f.owner), errors.CodeInvalidParam},
		{"unknown invoice", "missing", PaymentInput{PaymentMethod: "card"}, as(f.owner), errors.CodeInvoiceNotFound},
		{"member cannot pay", invoice.ID, PaymentInput{PaymentMethod: "card"}, as(f.member), errors.CodeForbidden},
		{"outsider", invoice.ID, PaymentInput{PaymentMethod: "card"}, as(f.outsider), errors.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ProcessPayment(tt.ctx, tt.id, tt.in)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), err.Error())
		})
	}

	stored, err := f.store.Invoices().GetByID(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusPending, stored.Status)
}

func TestProcessPayment_Timeout(t *testing.T) {
	f := newFixture(t, payment.NewStubGateway(time.Second), config.BillingConfig{PaymentTimeout: 20 * time.Millisecond})
	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic})
	invoice, err := f.svc.CreateInvoice(as(f.owner), sub.ID)
	require.NoError(t, err)

	result, err := f.svc.ProcessPayment(as(f.owner), invoice.ID, PaymentInput{PaymentMethod: "card"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, FailureTimeout, result.FailureReason)
	assert.Equal(t, entity.InvoiceStatusFailed, result.Invoice.Status)
}

type countingGateway struct {
	inner   payment.Gateway
	mu      sync.Mutex
	charges int
}

func (g *countingGateway) Charge(ctx context.Context, charge payment.Charge) (*payment.Receipt, error) {
	g.mu.Lock()
	g.charges++
	g.mu.Unlock()
	return g.inner.Charge(ctx, charge)
}

func TestProcessPayment_ConcurrentRequestsChargeOnce(t *testing.T) {
	gw := &countingGateway{inner: payment.NewStubGateway(50 * time.Millisecond)}
	f := newFixture(t, gw, config.BillingConfig{})
	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic})
	invoice, err := f.svc.CreateInvoice(as(f.owner), sub.ID)
	require.NoError(t, err)

	const workers = 4
	results := make([]*PaymentResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ProcessPayment(as(f.owner), invoice.ID, PaymentInput{PaymentMethod: "card"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i := range workers {
		if errs[i] != nil {
			assert.True(t, errors.HasCode(errs[i], errors.CodeConflict) || errors.HasCode(errs[i], errors.CodeInvoiceAlreadyPaid), errs[i].Error())
			continue
		}
		require.True(t, results[i].Success)
		succeeded++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, gw.charges)

	stored, err := f.store.Invoices().GetByID(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusPaid, stored.Status)
	assert.Equal(t, 1, stored.PaymentAttempts)
}

func TestReleaseStalePayments_RetryReusesIdempotencyKey(t *testing.T) {
	gw := payment.NewStubGateway(0)
	f := newFixture(t, gw, config.BillingConfig{PaymentTimeout: 10 * time.Second})
	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic})
	invoice, err := f.svc.CreateInvoice(as(f.owner), sub.ID)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	// 占位后扣款成功但进程在落库前退出
	claimed := invoice.Clone()
	claimed.Status = entity.InvoiceStatusProcessing
	claimed.PaymentMethod = "card"
	claimed.PaymentAttempts = 1
	claimed.UpdatedAt = now.Add(-time.Hour)
	require.NoError(t, f.store.Invoices().Transition(ctx, claimed, entity.InvoiceStatusPending))
	lost, err := gw.Charge(ctx, payment.Charge{
		InvoiceID:      claimed.ID,
		IdempotencyKey: claimed.IdempotencyKey(),
		Method:         "card",
		Amount:         claimed.Total,
		Currency:       claimed.Currency,
	})
	require.NoError(t, err)

	_, err = f.svc.ProcessPayment(as(f.owner), invoice.ID, PaymentInput{PaymentMethod: "card"})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	released, err := f.svc.ReleaseStalePayments(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	stored, err := f.store.Invoices().GetByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusFailed, stored.Status)
	assert.Equal(t, FailureInterrupted, stored.FailureReason)

	result, err := f.svc.ProcessPayment(as(f.owner), invoice.ID, PaymentInput{PaymentMethod: "card"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, lost.TransactionID, result.TransactionID)
	assert.Equal(t, 1, result.Invoice.PaymentAttempts)

	released, err = f.svc.ReleaseStalePayments(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestSubscription_CancelIsTerminal(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})
	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic})

	_, err := f.svc.CreateSubscription(as(f.owner), f.org.ID, CreateSubscriptionInput{Plan: entity.PlanEnterprise})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	cancelled, err := f.svc.CancelSubscription(as(f.owner), sub.ID, "switching vendors")
	require.NoError(t, err)
	assert.Equal(t, entity.SubscriptionStatusCancelled, cancelled.Status)
	assert.Equal(t, "switching vendors", cancelled.CancelReason)

	active := entity.SubscriptionStatusActive
	_, err = f.svc.UpdateSubscription(as(f.owner), sub.ID, UpdateSubscriptionInput{Status: &active})
	assert.True(t, errors.HasCode(err, errors.CodeSubscriptionCancelled))
	assert.Equal(t, 409, errors.StatusOf(err))

	_, err = f.svc.CancelSubscription(as(f.owner), sub.ID, "again")
	assert.True(t, errors.HasCode(err, errors.CodeSubscriptionCancelled))

	_, err = f.svc.CreateInvoice(as(f.owner), sub.ID)
	assert.True(t, errors.HasCode(err, errors.CodeSubscriptionCancelled))

	_, err = f.svc.GetSubscriptionByOrganization(as(f.owner), f.org.ID)
	assert.True(t, errors.HasCode(err, errors.CodeSubscriptionNotFound))

	replacement := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanEnterprise})
	current, err := f.svc.GetSubscriptionByOrganization(as(f.member), f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, current.ID)
}

func TestUpdateSubscription(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})
	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic})

	plan := entity.PlanProfessional
	cycle := entity.BillingCycleYearly
	updated, err := f.svc.UpdateSubscription(as(f.owner), sub.ID, UpdateSubscriptionInput{Plan: &plan, BillingCycle: &cycle})
	require.NoError(t, err)
	assert.Equal(t, entity.PlanProfessional, updated.Plan)
	assert.Equal(t, entity.BillingCycleYearly, updated.BillingCycle)

	_, err = f.svc.UpdateSubscription(as(f.member), sub.ID, UpdateSubscriptionInput{Plan: &plan})
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	bogus := entity.PlanID("gold")
	_, err = f.svc.UpdateSubscription(as(f.owner), sub.ID, UpdateSubscriptionInput{Plan: &bogus})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))

	_, err = f.svc.UpdateSubscription(as(f.owner), "missing", UpdateSubscriptionInput{Plan: &plan})
	assert.True(t, errors.HasCode(err, errors.CodeSubscriptionNotFound))
}

func TestCreateSubscription_Checks(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{TrialMaxDays: 14})

	_, err := f.svc.CreateSubscription(as(f.owner), f.org.ID, CreateSubscriptionInput{Plan: entity.PlanBasic, TrialPeriod: 20})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))

	_, err = f.svc.CreateSubscription(as(f.owner), "missing-org", CreateSubscriptionInput{Plan: entity.PlanBasic})
	assert.True(t, errors.HasCode(err, errors.CodeOrganizationNotFound))

	_, err = f.svc.CreateSubscription(as(f.member), f.org.ID, CreateSubscriptionInput{Plan: entity.PlanBasic})
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	_, err = f.svc.CreateSubscription(context.Background(), f.org.ID, CreateSubscriptionInput{Plan: entity.PlanBasic})
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))
}

func TestTenantContextScope(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})

	other := entity.NewTenant("another-org", "Other", "other.example.com", entity.PlanBasic)
	ctx := authz.WithTenant(as(f.owner), other)
	_, err := f.svc.CreateSubscription(ctx, f.org.ID, CreateSubscriptionInput{Plan: entity.PlanBasic})
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	suspended := entity.NewTenant(f.org.ID, "Acme", "acme.example.com", entity.PlanBasic)
	suspended.Suspend("non-payment", time.Now().UTC())
	ctx = authz.WithTenant(as(f.owner), suspended)
	_, err = f.svc.CreateSubscription(ctx, f.org.ID, CreateSubscriptionInput{Plan: entity.PlanBasic})
	assert.True(t, errors.HasCode(err, errors.CodeTenantSuspended))

	_, err = f.svc.GetBillingSummary(ctx, f.org.ID)
	assert.NoError(t, err)
}

func TestTrackUsage_CountsWithinCurrentPeriod(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})
	f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic})

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.TrackUsage(as(f.member), f.org.ID, TrackUsageInput{Metric: entity.MetricAPICalls, Value: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := f.svc.GetUsageStats(as(f.member), f.org.ID, UsageQuery{Period: PeriodCurrent})
	require.NoError(t, err)
	api := stats.Metrics[entity.MetricAPICalls]
	assert.GreaterOrEqual(t, api.Count, int64(n))
	assert.Equal(t, float64(n), api.Used)
	assert.EqualValues(t, 10_000, api.Limit)
	assert.False(t, api.Exceeded)
	require.NotNil(t, stats.PeriodStart)
	require.NotNil(t, stats.PeriodEnd)

	users := stats.Metrics[entity.MetricUsers]
	assert.Zero(t, users.Used)
	assert.EqualValues(t, 10, users.Limit)
}

func TestUsageStats_LimitsAndPeriods(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})

	_, err := f.svc.TrackUsage(as(f.member), f.org.ID, TrackUsageInput{Metric: entity.MetricProjects, Value: 6})
	require.NoError(t, err)
	_, err = f.svc.TrackUsage(as(f.member), f.org.ID, TrackUsageInput{Metric: "exports", Value: 3})
	require.NoError(t, err)

	stats, err := f.svc.GetUsageStats(as(f.member), f.org.ID, UsageQuery{})
	require.NoError(t, err)
	assert.Equal(t, entity.PlanBasic, stats.Plan)
	assert.True(t, stats.Metrics[entity.MetricProjects].Exceeded)
	assert.True(t, stats.Metrics["exports"].Unlimited)
	assert.Equal(t, []string{"apiCalls", "exports", "projects", "storage", "users"}, stats.MetricNames())

	all, err := f.svc.GetUsageStats(as(f.member), f.org.ID, UsageQuery{Period: PeriodAll})
	require.NoError(t, err)
	assert.Nil(t, all.PeriodStart)
	assert.Nil(t, all.PeriodEnd)

	past := time.Now().UTC().AddDate(-1, 0, 0)
	end := past.Add(time.Hour)
	old, err := f.svc.GetUsageStats(as(f.member), f.org.ID, UsageQuery{From: &past, To: &end})
	require.NoError(t, err)
	assert.Zero(t, old.Metrics[entity.MetricProjects].Count)

	_, err = f.svc.GetUsageStats(as(f.member), f.org.ID, UsageQuery{Period: "yesterday"})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))

	_, err = f.svc.TrackUsage(as(f.outsider), f.org.ID, TrackUsageInput{Metric: entity.MetricProjects, Value: 1})
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	_, err = f.svc.TrackUsage(as(f.member), f.org.ID, TrackUsageInput{Value: 1})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))
}

func TestListInvoicesAndSummary(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})
	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanProfessional})

	paid, err := f.svc.CreateInvoice(as(f.owner), sub.ID)
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(as(f.owner), paid.ID, PaymentInput{PaymentMethod: "card"})
	require.NoError(t, err)
	_, err = f.svc.CreateInvoice(as(f.owner), sub.ID)
	require.NoError(t, err)

	page, err := f.svc.ListInvoices(as(f.member), f.org.ID, ListInvoicesInput{Status: entity.InvoiceStatusPending}, repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	all, err := f.svc.ListInvoices(as(f.member), f.org.ID, ListInvoicesInput{}, repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)

	_, err = f.svc.ListInvoices(as(f.outsider), f.org.ID, ListInvoicesInput{}, repository.NewPagination(1, 10))
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	summary, err := f.svc.GetBillingSummary(as(f.member), f.org.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.Plan)
	assert.Equal(t, entity.PlanProfessional, summary.Plan.ID)
	assert.Equal(t, 1, summary.InvoiceCounts[entity.InvoiceStatusPaid])
	assert.Equal(t, 1, summary.InvoiceCounts[entity.InvoiceStatusPending])
	assert.True(t, summary.TotalPaid.Equal(decimal.NewFromInt(99)))
	assert.True(t, summary.TotalOutstanding.Equal(decimal.NewFromInt(99)))
	assert.NotNil(t, summary.LastPaymentAt)
	assert.Nil(t, summary.LatestRollup)
}

func TestSweepTrials(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})
	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic, TrialPeriod: 14})
	require.NotNil(t, sub.TrialEndsAt)

	n, err := f.svc.SweepTrials(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n)

	later := time.Now().UTC().AddDate(0, 0, 15)
	n, err = f.svc.SweepTrials(context.Background(), later)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.store.Subscriptions().GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.TrialEndsAt)

	invoices, err := f.store.Invoices().ListAllByOrganization(context.Background(), f.org.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, entity.InvoiceStatusPending, invoices[0].Status)

	n, err = f.svc.SweepTrials(context.Background(), later)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRollupUsage(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})
	f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic})
	_, err := f.svc.TrackUsage(as(f.member), f.org.ID, TrackUsageInput{Metric: entity.MetricStorage, Value: 512})
	require.NoError(t, err)

	n, err := f.svc.RollupUsage(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	summary, err := f.svc.GetBillingSummary(as(f.owner), f.org.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.LatestRollup)
	assert.Equal(t, float64(512), summary.LatestRollup.Totals[entity.MetricStorage])
}

func TestBilling_AuditTrail(t *testing.T) {
	f := newFixture(t, nil, config.BillingConfig{})
	sub := f.subscribe(t, CreateSubscriptionInput{Plan: entity.PlanBasic})
	invoice, err := f.svc.CreateInvoice(as(f.owner), sub.ID)
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(as(f.owner), invoice.ID, PaymentInput{PaymentMethod: "fail"})
	require.NoError(t, err)

	actions := make([]string, 0)
	for _, ev := range f.store.AuditEvents() {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{entity.AuditSubCreated, entity.AuditInvoiceCreated, entity.AuditPaymentFailed}, actions)
}
