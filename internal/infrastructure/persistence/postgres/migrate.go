package postgres

import (
	"context"
	"fmt"

	"saas-tenancy-api/internal/domain/entity"
)

// partialIndexes 需要手工创建的部分唯一索引
var partialIndexes = []string{
	// 每个组织最多一个未取消订阅
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_subscriptions_current_per_org
		ON subscriptions (organization_id) WHERE status <> 'cancelled'`,
}

// Migrate 自动迁移表结构
func (c *Client) Migrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.Migrate")
	defer span.End()

	db := c.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&entity.Organization{},
		&entity.Membership{},
		&entity.User{},
		&entity.PasswordResetToken{},
		&entity.Tenant{},
		&entity.TenantIsolationPolicy{},
		&entity.Subscription{},
		&entity.Invoice{},
		&entity.UsageRecord{},
		&entity.AuditEvent{},
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
