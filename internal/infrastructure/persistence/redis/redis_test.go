package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/domain/entity"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFrom(rdb, &config.RedisConfig{Enabled: true}), mr
}

var errTenantGone = errors.New("tenant not found")

type countingLoader struct {
	tenant *entity.Tenant
	err    error
	calls  int
}

func (l *countingLoader) load() (*entity.Tenant, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.tenant.Clone(), nil
}

func TestCanonicalTenantIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ACME.Example.com", "acme.example.com"},
		{"  acme.example.com ", "acme.example.com"},
		{"6BA7B810-9DAD-11D1-80B4-00C04FD430C8", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalTenantIdentifier(tt.in))
		})
	}
}

func TestTenantCache_SpellingsShareOneEntry(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewTenantCache(NewCache(client), time.Minute)
	ctx := context.Background()

	tenant := entity.NewTenant("org-1", "Acme", "acme.example.com", entity.PlanBasic)
	loader := &countingLoader{tenant: tenant}

	for _, identifier := range []string{"ACME.example.com", "acme.example.com", "Acme.Example.Com"} {
		got, err := cache.Resolve(ctx, identifier, loader.load)
		require.NoError(t, err)
		assert.Equal(t, tenant.ID, got.ID)
	}
	assert.Equal(t, 1, loader.calls)

	for _, identifier := range []string{tenant.ID, strings.ToUpper(tenant.ID)} {
		got, err := cache.Resolve(ctx, identifier, loader.load)
		require.NoError(t, err)
		assert.Equal(t, tenant.Domain, got.Domain)
	}
	assert.Equal(t, 2, loader.calls)
}

func TestTenantCache_InvalidateCoversEverySpelling(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewTenantCache(NewCache(client), time.Minute)
	ctx := context.Background()

	tenant := entity.NewTenant("org-1", "Acme", "acme.example.com", entity.PlanBasic)
	found := &countingLoader{tenant: tenant}
	_, err := cache.Resolve(ctx, "ACME.example.com", found.load)
	require.NoError(t, err)
	_, err = cache.Resolve(ctx, strings.ToUpper(tenant.ID), found.load)
	require.NoError(t, err)

	cache.Invalidate(ctx, tenant, "")

	gone := &countingLoader{err: errTenantGone}
	for _, identifier := range []string{"ACME.example.com", strings.ToUpper(tenant.ID)} {
		got, err := cache.Resolve(ctx, identifier, gone.load)
		assert.ErrorIs(t, err, errTenantGone, identifier)
		assert.Nil(t, got)
	}
	assert.Equal(t, 2, gone.calls)
}

func TestTenantCache_InvalidatePreviousDomain(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewTenantCache(NewCache(client), time.Minute)
	ctx := context.Background()

	tenant := entity.NewTenant("org-1", "Acme", "old.example.com", entity.PlanBasic)
	_, err := cache.Resolve(ctx, "OLD.example.com", (&countingLoader{tenant: tenant}).load)
	require.NoError(t, err)

	tenant.Domain = "new.example.com"
	cache.Invalidate(ctx, tenant, "old.example.com")

	_, err = cache.Resolve(ctx, "old.example.com", (&countingLoader{err: errTenantGone}).load)
	assert.ErrorIs(t, err, errTenantGone)
}

func TestTenantCache_LoaderErrorIsNotCached(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewTenantCache(NewCache(client), time.Minute)
	ctx := context.Background()

	missing := &countingLoader{err: errTenantGone}
	_, err := cache.Resolve(ctx, "acme.example.com", missing.load)
	require.ErrorIs(t, err, errTenantGone)

	tenant := entity.NewTenant("org-1", "Acme", "acme.example.com", entity.PlanBasic)
	got, err := cache.Resolve(ctx, "acme.example.com", (&countingLoader{tenant: tenant}).load)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)
}

func TestTenantCache_FallsBackWhenRedisIsDown(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewTenantCache(NewCache(client), time.Minute)
	mr.Close()

	tenant := entity.NewTenant("org-1", "Acme", "acme.example.com", entity.PlanBasic)
	loader := &countingLoader{tenant: tenant}
	got, err := cache.Resolve(context.Background(), "acme.example.com", loader.load)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)
	assert.Equal(t, 1, loader.calls)
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	client, mr := newTestClient(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()
	key := BuildRateLimitKey("ip", "10.0.0.1")

	for i := 1; i <= 3; i++ {
		res, err := limiter.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3-i, res.Remaining)
		assert.LessOrEqual(t, res.ResetAfter, time.Minute)
	}

	res, err := limiter.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)

	other, err := limiter.Allow(ctx, BuildRateLimitKey("ip", "10.0.0.2"), 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	// 窗口不随后续请求顺延
	mr.FastForward(time.Minute)
	res, err = limiter.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestUsageSnapshotStore(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewUsageSnapshotStore(NewCache(client), time.Hour)
	ctx := context.Background()

	latest, err := store.Latest(ctx, "org-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	snapshot := &entity.UsageSnapshot{
		OrganizationID: "org-1",
		PeriodStart:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Totals:         map[string]float64{"apiCalls": 42},
		ComputedAt:     now,
	}
	require.NoError(t, store.Save(ctx, snapshot))

	latest, err = store.Latest(ctx, "org-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 42.0, latest.Totals["apiCalls"])
	assert.True(t, latest.ComputedAt.Equal(now))

	other, err := store.Latest(ctx, "org-2")
	require.NoError(t, err)
	assert.Nil(t, other)

	mr.FastForward(time.Hour)
	latest, err = store.Latest(ctx, "org-1")
	require.NoError(t, err)
	assert.Nil(t, latest)
}
