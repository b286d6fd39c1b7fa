package directory

import (
	"context"
	"time"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/metrics"
	"saas-tenancy-api/pkg/utils"
	"saas-tenancy-api/pkg/validate"
)

// LoginInput 登录参数
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult 登录结果
type LoginResult struct {
	User   *entity.User
	Tokens *utils.TokenPair
}

func invalidLogin() *errors.AppError {
	return errors.Unauthorized("invalid email or password")
}

// Login 邮箱密码登录，签发访问令牌与刷新令牌
// 账号不存在、密码错误或账号停用统一返回 Unauthorized。
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "directory.Login")
	defer span.End()

	in.Email = entity.NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, errors.Database(err, "failed to get user")
	}
	if user == nil || !user.CheckPassword(in.Password) {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, invalidLogin()
	}
	if !user.IsActive() {
		metrics.LoginAttemptsTotal.WithLabelValues("inactive").Inc()
		return nil, invalidLogin()
	}

	tokens, err := s.jwt.GenerateTokenPair(user.ID, user.Email, string(user.Role), s.opts.AccessTokenTTL, s.opts.RefreshTokenTTL)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Internal(err, "failed to issue token")
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		logger.Warn(ctx, "failed to record last login", "user_id", user.ID, "error", err.Error())
	} else {
		user.LastLoginAt = &now
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	actorCtx := authz.WithActor(ctx, authz.Actor{UserID: user.ID, Email: user.Email, Role: user.Role})
	s.audit.Log(actorCtx, entity.AuditUserLogin, "", map[string]any{"userId": user.ID})
	return &LoginResult{User: user, Tokens: tokens}, nil
}

// Refresh 使用刷新令牌换取新的令牌对
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "directory.Refresh")
	defer span.End()

	claims, err := s.jwt.ParseToken(refreshToken)
	if err != nil {
		return nil, errors.New(errors.CodeTokenInvalid, "invalid refresh token")
	}
	if claims.Type != utils.TokenTypeRefresh {
		return nil, errors.New(errors.CodeTokenInvalid, "not a refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, errors.Database(err, "failed to get user")
	}
	if user == nil || !user.IsActive() {
		return nil, errors.New(errors.CodeTokenInvalid, "invalid refresh token")
	}

	tokens, err := s.jwt.GenerateTokenPair(user.ID, user.Email, string(user.Role), s.opts.AccessTokenTTL, s.opts.RefreshTokenTTL)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Internal(err, "failed to issue token")
	}
	return &LoginResult{User: user, Tokens: tokens}, nil
}
