// Package middleware 提供 HTTP 中间件
package middleware

import (
	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/interfaces/http/dto"
	"saas-tenancy-api/pkg/errors"
)

// RequireRole 角色检查中间件
// 基于令牌中的角色做前置拦截，服务层仍会按存储中的当前角色复核。
func RequireRole(roles ...entity.UserRole) gin.HandlerFunc {
	roleSet := make(map[entity.UserRole]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(c *gin.Context) {
		actor, ok := authz.ActorFromContext(c.Request.Context())
		if !ok {
			dto.Abort(c, errors.New(errors.CodeTokenMissing, "authentication required"))
			return
		}
		if !roleSet[actor.Role] {
			dto.Abort(c, errors.New(errors.CodePermissionDenied, "role not allowed"))
			return
		}
		c.Next()
	}
}

// RequireAdmin 管理员权限检查中间件
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(entity.UserRoleAdmin)
}
