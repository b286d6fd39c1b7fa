// Package handler 提供 HTTP 请求处理器
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/application/directory"
	"saas-tenancy-api/internal/interfaces/http/dto"
	"saas-tenancy-api/pkg/errors"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/auth/refresh"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	directory    *directory.Service
	refreshTTL   time.Duration
	secureCookie bool
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(directory *directory.Service, refreshTTL time.Duration, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		directory:    directory,
		refreshTTL:   refreshTTL,
		secureCookie: secureCookie,
	}
}

// Login 登录
// @Summary 用户登录
// @Description 邮箱密码登录，返回访问令牌并更新最近登录时间
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body directory.LoginInput true "登录信息"
// @Success 200 {object} dto.Response[dto.AuthResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req directory.LoginInput
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.directory.Login(c.Request.Context(), req)
	if err != nil {
		dto.Fail(c, err)
		return
	}

	h.setRefreshCookie(c, result.Tokens.RefreshToken)
	dto.Success(c, dto.ToAuthResponse(result))
}

// Refresh 刷新令牌
// @Summary 刷新访问令牌
// @Description 使用请求体或 Cookie 中的刷新令牌换取新的令牌对
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body dto.RefreshRequest false "刷新令牌"
// @Success 200 {object} dto.Response[dto.AuthResponse]
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	token := req.RefreshToken
	if token == "" {
		if cookie, err := c.Cookie(refreshCookieName); err == nil {
			token = cookie
		}
	}
	if token == "" {
		dto.Fail(c, errors.New(errors.CodeTokenMissing, "refresh token is required"))
		return
	}

	result, err := h.directory.Refresh(c.Request.Context(), token)
	if err != nil {
		dto.Fail(c, err)
		return
	}

	h.setRefreshCookie(c, result.Tokens.RefreshToken)
	dto.Success(c, dto.ToAuthResponse(result))
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, token, int(h.refreshTTL.Seconds()), refreshCookiePath, "", h.secureCookie, true)
}
