// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

// AuditRepository 审计事件仓储实现，只追加
type AuditRepository struct {
	client *Client
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository 创建审计仓储
func NewAuditRepository(client *Client) *AuditRepository {
	return &AuditRepository{client: client}
}

// Append 追加审计事件
func (r *AuditRepository) Append(ctx context.Context, event *entity.AuditEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.AuditRepository.Append")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}
