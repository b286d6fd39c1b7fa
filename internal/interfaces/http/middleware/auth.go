// Package middleware 提供 HTTP 中间件
package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/interfaces/http/dto"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/utils"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
}

// Auth 认证中间件
// Authorization 头可选；携带时必须是有效的访问令牌，否则返回 401。
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		// 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			dto.Abort(c, errors.New(errors.CodeTokenInvalid, "invalid authorization format"))
			return
		}

		claims, err := jwtManager.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if stderrors.Is(err, utils.ErrExpiredToken) {
				dto.Abort(c, errors.New(errors.CodeTokenExpired, "token expired"))
				return
			}
			dto.Abort(c, errors.New(errors.CodeTokenInvalid, "invalid token"))
			return
		}

		// 确保是 AccessToken
		if claims.Type != utils.TokenTypeAccess {
			dto.Abort(c, errors.New(errors.CodeTokenInvalid, "invalid token type"))
			return
		}

		ctx := authz.WithActor(c.Request.Context(), authz.Actor{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   entity.UserRole(claims.Role),
		})
		ctx = logger.WithContext(ctx, logger.UserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireAuth 要求请求已认证
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := authz.ActorFromContext(c.Request.Context()); !ok {
			dto.Abort(c, errors.New(errors.CodeTokenMissing, "authentication required"))
			return
		}
		c.Next()
	}
}
