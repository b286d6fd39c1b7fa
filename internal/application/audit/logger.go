// Package audit 记录管理类操作的审计事件
package audit

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/metrics"
)

var tracer = otel.Tracer("audit")

// Publisher 审计事件的下游发布通道
type Publisher interface {
	PublishAuditEvent(ctx context.Context, event *entity.AuditEvent) (string, error)
}

// Logger 审计日志写入器
// 写入发生在业务变更提交之后、响应返回之前；失败只记录日志与指标，不向调用方传播。
type Logger struct {
	repo      repository.AuditRepository
	publisher Publisher
}

// NewLogger 创建审计日志写入器，publisher 可为 nil
func NewLogger(repo repository.AuditRepository, publisher Publisher) *Logger {
	return &Logger{repo: repo, publisher: publisher}
}

// Log 追加一条审计事件
// tenantID 为空时取请求上下文中已解析的租户；调用方用户取自认证身份。
func (l *Logger) Log(ctx context.Context, action, tenantID string, details map[string]any) {
	if l == nil || l.repo == nil {
		return
	}
	if tenantID == "" {
		tenantID = authz.TenantID(ctx)
	}

	event := entity.NewAuditEvent(action, tenantID, authz.ActorID(ctx), details)
	event.RequestID = logger.StringFromContext(ctx, logger.RequestIDKey)

	// 客户端断开不应中断已提交变更的审计写入
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "audit.Log")
	defer span.End()
	span.SetAttributes(attribute.String("audit.action", action))

	if err := l.repo.Append(ctx, event); err != nil {
		span.RecordError(err)
		metrics.AuditEventsTotal.WithLabelValues(action, "error").Inc()
		logger.Error(ctx, "failed to append audit event", err, "action", action, "audit_id", event.ID)
		return
	}
	metrics.AuditEventsTotal.WithLabelValues(action, "success").Inc()

	if l.publisher == nil {
		return
	}
	if _, err := l.publisher.PublishAuditEvent(ctx, event); err != nil {
		logger.Warn(ctx, "failed to publish audit event", "action", action, "audit_id", event.ID, "error", err.Error())
	}
}
