// Package directory 实现组织与用户目录、登录认证与密码重置
package directory

import (
	"time"

	"go.opentelemetry.io/otel"

	"saas-tenancy-api/internal/application/audit"
	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/internal/infrastructure/notify"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/utils"
)

var tracer = otel.Tracer("directory")

// Options 目录服务参数
type Options struct {
	BcryptCost       int
	PasswordResetTTL time.Duration
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
}

// Service 组织与用户目录
type Service struct {
	users    repository.UserRepository
	resets   repository.PasswordResetRepository
	orgs     repository.OrganizationRepository
	policy   *authz.Policy
	audit    *audit.Logger
	notifier notify.Notifier
	jwt      *utils.JWTManager
	tx       repository.Transactor
	opts     Options
}

// NewService 创建目录服务
func NewService(
	users repository.UserRepository,
	resets repository.PasswordResetRepository,
	orgs repository.OrganizationRepository,
	policy *authz.Policy,
	auditLogger *audit.Logger,
	notifier notify.Notifier,
	jwt *utils.JWTManager,
	tx repository.Transactor,
	opts Options,
) *Service {
	if opts.PasswordResetTTL <= 0 {
		opts.PasswordResetTTL = time.Hour
	}
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = time.Hour
	}
	if opts.RefreshTokenTTL <= 0 {
		opts.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	return &Service{
		users:    users,
		resets:   resets,
		orgs:     orgs,
		policy:   policy,
		audit:    auditLogger,
		notifier: notifier,
		jwt:      jwt,
		tx:       tx,
		opts:     opts,
	}
}

func userNotFound() *errors.AppError {
	return errors.New(errors.CodeUserNotFound, "user not found")
}

func organizationNotFound() *errors.AppError {
	return errors.New(errors.CodeOrganizationNotFound, "organization not found")
}
