package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"saas-tenancy-api/pkg/logger"
)

// tenantSetting 事务级会话变量，供数据库侧行级策略读取
const tenantSetting = "app.current_tenant_id"

// bindTenant 将请求解析出的租户写入当前事务的会话变量
// 变量作用域为事务本身，提交或回滚后自动失效；无租户上下文时不做任何事。
func bindTenant(ctx context.Context, tx *gorm.DB) error {
	tenantID := logger.StringFromContext(ctx, logger.TenantIDKey)
	if tenantID == "" {
		return nil
	}
	if err := tx.Exec("SELECT set_config(?, ?, TRUE)", tenantSetting, tenantID).Error; err != nil {
		return fmt.Errorf("failed to set tenant context: %w", err)
	}
	return nil
}
