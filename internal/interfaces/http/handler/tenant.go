// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/application/tenancy"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/interfaces/http/dto"
	"saas-tenancy-api/pkg/errors"
)

// TenantHandler 租户处理器
type TenantHandler struct {
	tenants *tenancy.Service
}

// NewTenantHandler 创建租户处理器
func NewTenantHandler(tenants *tenancy.Service) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

// CreateTenant 创建租户
// @Summary 创建租户
// @Description 在组织下创建租户并初始化数据隔离策略
// @Tags Tenants
// @Accept json
// @Produce json
// @Param body body tenancy.CreateTenantInput true "租户信息"
// @Success 201 {object} dto.Response[dto.TenantResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/tenants [post]
func (h *TenantHandler) CreateTenant(c *gin.Context) {
	var req tenancy.CreateTenantInput
	if !bindJSON(c, &req) {
		return
	}

	tenant, err := h.tenants.CreateTenant(c.Request.Context(), req)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToTenantResponse(tenant))
}

// ListTenants 列出可见租户
// @Summary 租户列表
// @Tags Tenants
// @Produce json
// @Param organizationId query string false "组织 ID"
// @Param status query string false "状态"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.TenantResponse]
// @Router /api/tenants [get]
func (h *TenantHandler) ListTenants(c *gin.Context) {
	in := tenancy.ListTenantsInput{
		OrganizationID: c.Query("organizationId"),
		Status:         entity.TenantStatus(c.Query("status")),
	}

	result, err := h.tenants.ListTenants(c.Request.Context(), in, dto.BindPage(c))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Paged(c, dto.ToTenantResponses(result.Items), dto.NewPagination(result))
}

// GetCurrentTenant 获取请求上下文中的租户
// @Summary 当前租户
// @Tags Tenants
// @Produce json
// @Param x-tenant-id header string true "租户 ID 或域名"
// @Success 200 {object} dto.Response[dto.TenantResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/tenants/current [get]
func (h *TenantHandler) GetCurrentTenant(c *gin.Context) {
	current := authz.TenantFromContext(c.Request.Context())
	if current == nil {
		dto.Fail(c, errors.InvalidParam("tenant context is required"))
		return
	}

	tenant, err := h.tenants.GetTenant(c.Request.Context(), current.ID)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToTenantResponse(tenant))
}

// GetTenant 获取租户
// @Summary 获取租户
// @Tags Tenants
// @Produce json
// @Param id path string true "租户 ID"
// @Success 200 {object} dto.Response[dto.TenantResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/tenants/{id} [get]
func (h *TenantHandler) GetTenant(c *gin.Context) {
	tenant, err := h.tenants.GetTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToTenantResponse(tenant))
}

// GetTenantByDomain 按域名获取租户
// @Summary 按域名获取租户
// @Tags Tenants
// @Produce json
// @Param domain path string true "域名"
// @Success 200 {object} dto.Response[dto.TenantResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/tenants/domain/{domain} [get]
func (h *TenantHandler) GetTenantByDomain(c *gin.Context) {
	tenant, err := h.tenants.GetTenantByDomain(c.Request.Context(), c.Param("domain"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToTenantResponse(tenant))
}

// UpdateTenant 更新租户
// @Summary 更新租户
// @Tags Tenants
// @Accept json
// @Produce json
// @Param id path string true "租户 ID"
// @Param body body tenancy.UpdateTenantInput true "更新内容"
// @Success 200 {object} dto.Response[dto.TenantResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/tenants/{id} [put]
func (h *TenantHandler) UpdateTenant(c *gin.Context) {
	var req tenancy.UpdateTenantInput
	if !bindJSON(c, &req) {
		return
	}

	tenant, err := h.tenants.UpdateTenant(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToTenantResponse(tenant))
}

// DeleteTenant 删除租户
// @Summary 删除租户
// @Tags Tenants
// @Produce json
// @Param id path string true "租户 ID"
// @Success 200 {object} dto.Response[any]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/tenants/{id} [delete]
func (h *TenantHandler) DeleteTenant(c *gin.Context) {
	if err := h.tenants.DeleteTenant(c.Request.Context(), c.Param("id")); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Message(c, "tenant deleted")
}

// SuspendTenant 暂停租户
// @Summary 暂停租户
// @Tags Tenants
// @Accept json
// @Produce json
// @Param id path string true "租户 ID"
// @Param body body dto.ReasonRequest true "暂停原因"
// @Success 200 {object} dto.Response[dto.TenantResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/tenants/{id}/suspend [post]
func (h *TenantHandler) SuspendTenant(c *gin.Context) {
	var req dto.ReasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	tenant, err := h.tenants.SuspendTenant(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.SuccessWithMessage(c, dto.ToTenantResponse(tenant), "tenant suspended")
}

// ReactivateTenant 恢复租户
// @Summary 恢复租户
// @Tags Tenants
// @Produce json
// @Param id path string true "租户 ID"
// @Success 200 {object} dto.Response[dto.TenantResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/tenants/{id}/reactivate [post]
func (h *TenantHandler) ReactivateTenant(c *gin.Context) {
	tenant, err := h.tenants.ReactivateTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.SuccessWithMessage(c, dto.ToTenantResponse(tenant), "tenant reactivated")
}

// GetIsolationPolicy 获取租户隔离策略
// @Summary 租户隔离策略
// @Tags Tenants
// @Produce json
// @Param id path string true "租户 ID"
// @Success 200 {object} dto.Response[dto.IsolationPolicyResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/tenants/{id}/isolation [get]
func (h *TenantHandler) GetIsolationPolicy(c *gin.Context) {
	policy, err := h.tenants.GetIsolationPolicy(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToIsolationPolicyResponse(policy))
}

// AccessResponse 访问校验结果
type AccessResponse struct {
	TenantID  string `json:"tenantId"`
	UserID    string `json:"userId"`
	HasAccess bool   `json:"hasAccess"`
}

// CheckAccess 校验用户是否可访问租户
// @Summary 租户访问校验
// @Tags Tenants
// @Produce json
// @Param id path string true "租户 ID"
// @Param userId path string true "用户 ID"
// @Success 200 {object} dto.Response[AccessResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/tenants/{id}/access/{userId} [get]
func (h *TenantHandler) CheckAccess(c *gin.Context) {
	tenantID, userID := c.Param("id"), c.Param("userId")
	ok, err := h.tenants.CheckTenantAccess(c.Request.Context(), tenantID, userID)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, AccessResponse{TenantID: tenantID, UserID: userID, HasAccess: ok})
}
