package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/infrastructure/persistence/memory"
	"saas-tenancy-api/pkg/logger"
)

type failingRepo struct{}

func (failingRepo) Append(ctx context.Context, event *entity.AuditEvent) error {
	return errors.New("disk full")
}

type recordingPublisher struct {
	events []*entity.AuditEvent
	err    error
}

func (p *recordingPublisher) PublishAuditEvent(ctx context.Context, event *entity.AuditEvent) (string, error) {
	p.events = append(p.events, event)
	return "1-0", p.err
}

func TestLogger_LogCapturesRequestIdentity(t *testing.T) {
	store := memory.NewStore()
	pub := &recordingPublisher{}
	l := NewLogger(store.Audit(), pub)

	ctx := authz.WithActor(context.Background(), authz.Actor{UserID: "u-1", Role: entity.UserRoleAdmin})
	ctx = authz.WithTenant(ctx, &entity.Tenant{ID: "t-ctx"})
	ctx = logger.WithContext(ctx, logger.RequestIDKey, "req-1")

	l.Log(ctx, entity.AuditTenantUpdated, "", map[string]any{"field": "name"})

	events := store.AuditEvents()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, entity.AuditTenantUpdated, ev.Action)
	require.NotNil(t, ev.TenantID)
	assert.Equal(t, "t-ctx", *ev.TenantID)
	require.NotNil(t, ev.UserID)
	assert.Equal(t, "u-1", *ev.UserID)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, "name", ev.Details["field"])
	assert.Len(t, pub.events, 1)
}

func TestLogger_ExplicitTenantWins(t *testing.T) {
	store := memory.NewStore()
	l := NewLogger(store.Audit(), nil)

	ctx := authz.WithTenant(context.Background(), &entity.Tenant{ID: "t-ctx"})
	l.Log(ctx, entity.AuditTenantDeleted, "t-target", nil)

	events := store.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "t-target", *events[0].TenantID)
	assert.Nil(t, events[0].UserID)
	assert.NotNil(t, events[0].Details)
}

func TestLogger_FailuresAreSwallowed(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewLogger(failingRepo{}, pub)

	assert.NotPanics(t, func() {
		l.Log(context.Background(), entity.AuditUserCreated, "", nil)
	})
	assert.Empty(t, pub.events, "events that failed to persist are not published")

	store := memory.NewStore()
	l = NewLogger(store.Audit(), &recordingPublisher{err: errors.New("redis down")})
	l.Log(context.Background(), entity.AuditUserCreated, "", nil)
	assert.Len(t, store.AuditEvents(), 1)
}

func TestLogger_CancelledRequestStillRecorded(t *testing.T) {
	store := memory.NewStore()
	l := NewLogger(store.Audit(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Log(ctx, entity.AuditTenantCreated, "t-1", nil)
	assert.Len(t, store.AuditEvents(), 1)
}
