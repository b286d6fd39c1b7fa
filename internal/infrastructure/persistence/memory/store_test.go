package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

func TestTenantRepository_ConcurrentCreateSameDomain(t *testing.T) {
	store := NewStore()
	repo := store.Tenants()
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, entity.NewTenant("org-1", "Acme", "acme.example.com", entity.PlanBasic))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, repository.ErrDuplicate):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(31), conflicts.Load())

	page, err := repo.List(ctx, repository.TenantFilter{}, repository.NewPagination(1, 100))
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestTenantRepository_SubdomainUniqueness(t *testing.T) {
	repo := NewStore().Tenants()
	ctx := context.Background()
	sub := "acme"

	first := entity.NewTenant("org-1", "Acme", "acme.example.com", entity.PlanBasic)
	first.Subdomain = &sub
	require.NoError(t, repo.Create(ctx, first))

	second := entity.NewTenant("org-1", "Acme 2", "acme2.example.com", entity.PlanBasic)
	second.Subdomain = &sub
	assert.ErrorIs(t, repo.Create(ctx, second), repository.ErrDuplicate)

	third := entity.NewTenant("org-1", "Acme 3", "acme3.example.com", entity.PlanBasic)
	require.NoError(t, repo.Create(ctx, third), "tenants without subdomain never conflict on it")
}

func TestTenantRepository_ReturnsCopies(t *testing.T) {
	repo := NewStore().Tenants()
	ctx := context.Background()

	tenant := entity.NewTenant("org-1", "Acme", "acme.example.com", entity.PlanBasic)
	tenant.Settings["theme"] = "dark"
	require.NoError(t, repo.Create(ctx, tenant))

	got, err := repo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	got.Name = "mutated"
	got.Settings["theme"] = "light"

	again, err := repo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.Name)
	assert.Equal(t, "dark", again.Settings["theme"])
}

func TestSubscriptionRepository_OneCurrentPerOrganization(t *testing.T) {
	repo := NewStore().Subscriptions()
	ctx := context.Background()

	first := entity.NewSubscription("org-1", entity.PlanBasic, entity.BillingCycleMonthly, "USD", 0)
	require.NoError(t, repo.Create(ctx, first))

	second := entity.NewSubscription("org-1", entity.PlanProfessional, entity.BillingCycleYearly, "USD", 0)
	assert.ErrorIs(t, repo.Create(ctx, second), repository.ErrDuplicate)

	first.Cancel("switching", time.Now().UTC())
	require.NoError(t, repo.Update(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	first.Status = entity.SubscriptionStatusActive
	assert.ErrorIs(t, repo.Update(ctx, first), repository.ErrStaleState, "cancelled subscriptions are terminal")

	current, err := repo.GetCurrentByOrganization(ctx, "org-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, second.ID, current.ID)
}

func TestInvoiceRepository_TransitionIsConditional(t *testing.T) {
	repo := NewStore().Invoices()
	ctx := context.Background()

	sub := entity.NewSubscription("org-1", entity.PlanBasic, entity.BillingCycleMonthly, "USD", 0)
	plan, _ := entity.LookupPlan(entity.PlanBasic)
	inv := entity.NewInvoice(sub, plan, sub.StartedAt, sub.StartedAt.AddDate(0, 1, 0))
	require.NoError(t, repo.Create(ctx, inv))

	inv.Status = entity.InvoiceStatusPaid
	require.NoError(t, repo.Transition(ctx, inv, entity.InvoiceStatusPending, entity.InvoiceStatusFailed))

	inv.Status = entity.InvoiceStatusFailed
	assert.ErrorIs(t, repo.Transition(ctx, inv, entity.InvoiceStatusPending, entity.InvoiceStatusFailed), repository.ErrStaleState)

	got, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusPaid, got.Status)
}

func TestPasswordResetRepository_ConsumeOnce(t *testing.T) {
	repo := NewStore().PasswordResets()
	ctx := context.Background()
	now := time.Now().UTC()

	token := &entity.PasswordResetToken{ID: "t1", UserID: "u1", TokenHash: "hash", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	require.NoError(t, repo.Create(ctx, token))

	got, err := repo.Consume(ctx, "hash", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)

	again, err := repo.Consume(ctx, "hash", now)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestUsageRepository_AggregateWindow(t *testing.T) {
	repo := NewStore().Usage()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, entity.NewUsageRecord("org-1", entity.MetricAPICalls, 1)))
	}
	require.NoError(t, repo.Append(ctx, entity.NewUsageRecord("org-2", entity.MetricAPICalls, 10)))
	old := entity.NewUsageRecord("org-1", entity.MetricAPICalls, 100)
	old.RecordedAt = time.Now().UTC().AddDate(-1, 0, 0)
	require.NoError(t, repo.Append(ctx, old))

	from := time.Now().UTC().Add(-time.Hour)
	aggs, err := repo.Aggregate(ctx, "org-1", from, time.Time{})
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, entity.MetricAPICalls, aggs[0].Metric)
	assert.Equal(t, float64(5), aggs[0].Total)
	assert.Equal(t, int64(5), aggs[0].Count)
}

func TestUserRepository_UpdateKeepsCredentials(t *testing.T) {
	repo := NewStore().Users()
	ctx := context.Background()

	user := entity.NewUser("alice@example.com", "Alice", "Smith", entity.UserRoleUser)
	user.PasswordHash = "old-hash"
	require.NoError(t, repo.Create(ctx, user))

	stale, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)

	loginAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "new-hash"))
	require.NoError(t, repo.UpdateLastLogin(ctx, user.ID, loginAt))

	stale.FirstName = "Alicia"
	stale.PasswordHash = ""
	require.NoError(t, repo.Update(ctx, stale))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.FirstName)
	assert.Equal(t, "new-hash", got.PasswordHash)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, got.LastLoginAt.Equal(loginAt))
}

func TestTenantRepository_UpdateWritesOnlyListedColumns(t *testing.T) {
	repo := NewStore().Tenants()
	ctx := context.Background()

	tenant := entity.NewTenant("org-1", "Acme", "acme.example.com", entity.PlanBasic)
	require.NoError(t, repo.Create(ctx, tenant))

	stale, err := repo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)

	suspended, err := repo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	suspended.Status = entity.TenantStatusSuspended
	require.NoError(t, repo.Update(ctx, suspended, entity.TenantStatusColumns...))

	stale.Name = "Acme Renamed"
	require.NoError(t, repo.Update(ctx, stale, entity.TenantColumnName))

	got, err := repo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Renamed", got.Name)
	assert.Equal(t, entity.TenantStatusSuspended, got.Status)

	missing := entity.NewTenant("org-1", "Ghost", "ghost.example.com", entity.PlanBasic)
	assert.ErrorIs(t, repo.Update(ctx, missing, entity.TenantColumnName), repository.ErrStaleState)
}

func TestPagination_HugePage(t *testing.T) {
	p := repository.NewPagination(math.MaxInt, 20)
	assert.Equal(t, repository.MaxPage, p.Page)
	assert.Equal(t, (repository.MaxPage-1)*20, p.Offset())

	raw := repository.Pagination{Page: math.MaxInt, PageSize: math.MaxInt}
	assert.GreaterOrEqual(t, raw.Offset(), 0)

	repo := NewStore().Users()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, entity.NewUser("a@example.com", "A", "A", entity.UserRoleUser)))

	for _, pagination := range []repository.Pagination{p, raw, {Page: 1, PageSize: math.MaxInt}} {
		assert.NotPanics(t, func() {
			_, err := repo.List(ctx, repository.UserFilter{}, pagination)
			require.NoError(t, err)
		})
	}

	result, err := repo.List(ctx, repository.UserFilter{}, p)
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, int64(1), result.Total)
}
