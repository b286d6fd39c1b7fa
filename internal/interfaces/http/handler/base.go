// Package handler 提供 HTTP 请求处理器
package handler

import (
	stderrors "errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/interfaces/http/dto"
	"saas-tenancy-api/pkg/errors"
)

// bindJSON 绑定请求体，失败时写入 400 响应并返回 false
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		dto.Fail(c, errors.InvalidParam("invalid request body").WithDetail(err.Error()))
		return false
	}
	return true
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil && !stderrors.Is(err, io.EOF) {
		dto.Fail(c, errors.InvalidParam("invalid request body").WithDetail(err.Error()))
		return false
	}
	return true
}

// organizationScope 确定组织范围：显式传入优先，否则取租户上下文所属组织
func organizationScope(c *gin.Context, explicit string) (string, bool) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, true
	}
	if tenant := authz.TenantFromContext(c.Request.Context()); tenant != nil {
		return tenant.OrganizationID, true
	}
	dto.Fail(c, errors.InvalidParam("organizationId is required when no tenant context is present"))
	return "", false
}
