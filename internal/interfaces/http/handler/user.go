// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/application/directory"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/interfaces/http/dto"
)

// resetRequestedMessage 无论邮箱是否存在都返回相同提示
const resetRequestedMessage = "if the email is registered, a password reset link has been sent"

// UserHandler 用户处理器
type UserHandler struct {
	directory *directory.Service
}

// NewUserHandler 创建用户处理器
func NewUserHandler(directory *directory.Service) *UserHandler {
	return &UserHandler{directory: directory}
}

// CreateUser 创建用户
// @Summary 创建用户
// @Tags Users
// @Accept json
// @Produce json
// @Param body body directory.CreateUserInput true "用户信息"
// @Success 201 {object} dto.Response[dto.UserResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req directory.CreateUserInput
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.directory.CreateUser(c.Request.Context(), req)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToUserResponse(user))
}

// ListUsers 用户列表
// @Summary 用户列表
// @Tags Users
// @Produce json
// @Param status query string false "状态"
// @Param role query string false "角色"
// @Param emailVerified query bool false "邮箱是否已验证"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.UserResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Router /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	verified, err := dto.QueryBool(c, "emailVerified")
	if err != nil {
		dto.Fail(c, err)
		return
	}
	in := directory.ListUsersInput{
		Status:        entity.UserStatus(c.Query("status")),
		Role:          entity.UserRole(c.Query("role")),
		EmailVerified: verified,
	}

	result, err := h.directory.ListUsers(c.Request.Context(), in, dto.BindPage(c))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Paged(c, dto.ToUserResponses(result.Items), dto.NewPagination(result))
}

// Me 当前登录用户
// @Summary 当前用户
// @Tags Users
// @Produce json
// @Success 200 {object} dto.Response[dto.UserResponse]
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.directory.GetUser(ctx, authz.ActorID(ctx))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToUserResponse(user))
}

// GetUser 获取用户
// @Summary 获取用户
// @Tags Users
// @Produce json
// @Param id path string true "用户 ID"
// @Success 200 {object} dto.Response[dto.UserResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.directory.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToUserResponse(user))
}

// UpdateUser 更新用户
// @Summary 更新用户
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "用户 ID"
// @Param body body directory.UpdateUserInput true "更新内容"
// @Success 200 {object} dto.Response[dto.UserResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req directory.UpdateUserInput
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.directory.UpdateUser(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToUserResponse(user))
}

// DeleteUser 删除用户（管理员）
// @Summary 删除用户
// @Tags Users
// @Produce json
// @Param id path string true "用户 ID"
// @Success 200 {object} dto.Response[any]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.directory.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Message(c, "user deleted")
}

// ChangePassword 修改密码
// @Summary 修改密码
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "用户 ID"
// @Param body body dto.ChangePasswordRequest true "密码"
// @Success 200 {object} dto.Response[any]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /api/users/{id}/change-password [post]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req dto.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.directory.ChangePassword(c.Request.Context(), c.Param("id"), req.CurrentPassword, req.NewPassword); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Message(c, "password changed")
}

// RequestPasswordReset 申请重置密码
// @Summary 申请重置密码
// @Tags Users
// @Accept json
// @Produce json
// @Param body body dto.ResetPasswordRequest true "邮箱"
// @Success 200 {object} dto.Response[any]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/users/reset-password [post]
func (h *UserHandler) RequestPasswordReset(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.directory.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Message(c, resetRequestedMessage)
}

// SetPassword 使用重置令牌设置密码
// @Summary 设置新密码
// @Tags Users
// @Accept json
// @Produce json
// @Param body body dto.SetPasswordRequest true "令牌与新密码"
// @Success 200 {object} dto.Response[any]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/users/set-password [post]
func (h *UserHandler) SetPassword(c *gin.Context) {
	var req dto.SetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.directory.SetPasswordWithToken(c.Request.Context(), req.Token, req.Password); err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Message(c, "password updated")
}

// GetUserOrganizations 用户所属组织
// @Summary 用户所属组织
// @Tags Users
// @Produce json
// @Param id path string true "用户 ID"
// @Success 200 {object} dto.Response[[]dto.OrganizationResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/users/{id}/organizations [get]
func (h *UserHandler) GetUserOrganizations(c *gin.Context) {
	orgs, err := h.directory.GetUserOrganizations(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToOrganizationResponses(orgs))
}
