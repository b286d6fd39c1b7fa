// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"saas-tenancy-api/internal/domain/entity"
)

// AuditRepository 审计事件仓储接口，只追加
type AuditRepository interface {
	// Append 追加审计事件
	Append(ctx context.Context, event *entity.AuditEvent) error
}
