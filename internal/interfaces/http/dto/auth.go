package dto

import (
	"saas-tenancy-api/internal/application/directory"
)

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	TokenType    string        `json:"tokenType"`
	ExpiresAt    string        `json:"expiresAt"`
	User         *UserResponse `json:"user"`
}

// ToAuthResponse 登录结果转换为响应
func ToAuthResponse(r *directory.LoginResult) *AuthResponse {
	if r == nil || r.Tokens == nil {
		return nil
	}
	return &AuthResponse{
		AccessToken:  r.Tokens.AccessToken,
		RefreshToken: r.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    formatTime(r.Tokens.ExpiresAt),
		User:         ToUserResponse(r.User),
	}
}
