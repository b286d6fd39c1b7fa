// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/application/directory"
	"saas-tenancy-api/internal/interfaces/http/dto"
)

// OrganizationHandler 组织处理器
type OrganizationHandler struct {
	directory *directory.Service
}

// NewOrganizationHandler 创建组织处理器
func NewOrganizationHandler(directory *directory.Service) *OrganizationHandler {
	return &OrganizationHandler{directory: directory}
}

// CreateOrganization 创建组织，创建者成为 owner
// @Summary 创建组织
// @Tags Organizations
// @Accept json
// @Produce json
// @Param body body directory.CreateOrganizationInput true "组织信息"
// @Success 201 {object} dto.Response[dto.OrganizationResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/organizations [post]
func (h *OrganizationHandler) CreateOrganization(c *gin.Context) {
	var req directory.CreateOrganizationInput
	if !bindJSON(c, &req) {
		return
	}

	org, err := h.directory.CreateOrganization(c.Request.Context(), req)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToOrganizationResponse(org))
}

// GetOrganization 获取组织
// @Summary 获取组织
// @Tags Organizations
// @Produce json
// @Param id path string true "组织 ID"
// @Success 200 {object} dto.Response[dto.OrganizationResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/organizations/{id} [get]
func (h *OrganizationHandler) GetOrganization(c *gin.Context) {
	org, err := h.directory.GetOrganization(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToOrganizationResponse(org))
}

// ListMembers 组织成员
// @Summary 组织成员列表
// @Tags Organizations
// @Produce json
// @Param id path string true "组织 ID"
// @Success 200 {object} dto.Response[[]dto.MembershipResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/organizations/{id}/members [get]
func (h *OrganizationHandler) ListMembers(c *gin.Context) {
	members, err := h.directory.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToMembershipResponses(members))
}

// AddMember 添加成员
// @Summary 添加组织成员
// @Tags Organizations
// @Accept json
// @Produce json
// @Param id path string true "组织 ID"
// @Param body body directory.AddMemberInput true "成员"
// @Success 201 {object} dto.Response[dto.MembershipResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/organizations/{id}/members [post]
func (h *OrganizationHandler) AddMember(c *gin.Context) {
	var req directory.AddMemberInput
	if !bindJSON(c, &req) {
		return
	}

	membership, err := h.directory.AddUserToOrganization(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToMembershipResponse(membership))
}

// RemoveMember 移除成员
// @Summary 移除组织成员
// @Tags Organizations
// @Produce json
// @Param id path string true "组织 ID"
// @Param userId path string true "用户 ID"
// @Success 200 {object} dto.Response[any]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/organizations/{id}/members/{userId} [delete]
func (h *OrganizationHandler) RemoveMember(c *gin.Context) {
	if err := h.directory.RemoveUserFromOrganization(c.Request.Context(), c.Param("id"), c.Param("userId")); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Message(c, "member removed")
}
