package directory

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/validate"
)

// CreateUserInput 创建用户参数
type CreateUserInput struct {
	Email     string          `json:"email" validate:"required,email,max=255"`
	Password  string          `json:"password" validate:"required,min=8,max=72"`
	FirstName string          `json:"firstName" validate:"required,max=50"`
	LastName  string          `json:"lastName" validate:"required,max=50"`
	Role      entity.UserRole `json:"role" validate:"omitempty,oneof=admin manager user"`
}

// UpdateUserInput 部分更新参数
// 本人只能修改姓名与偏好，其余字段需要管理员。
type UpdateUserInput struct {
	Email         *string                 `json:"email" validate:"omitempty,email,max=255"`
	FirstName     *string                 `json:"firstName" validate:"omitempty,min=1,max=50"`
	LastName      *string                 `json:"lastName" validate:"omitempty,min=1,max=50"`
	Role          *entity.UserRole        `json:"role" validate:"omitempty,oneof=admin manager user"`
	Status        *entity.UserStatus      `json:"status" validate:"omitempty,oneof=active inactive"`
	EmailVerified *bool                   `json:"emailVerified"`
	Preferences   *entity.UserPreferences `json:"preferences"`
}

func (in UpdateUserInput) privileged() bool {
	return in.Email != nil || in.Role != nil || in.Status != nil || in.EmailVerified != nil
}

// ListUsersInput 用户列表过滤条件
type ListUsersInput struct {
	Status        entity.UserStatus `json:"status" validate:"omitempty,oneof=active inactive"`
	Role          entity.UserRole   `json:"role" validate:"omitempty,oneof=admin manager user"`
	EmailVerified *bool             `json:"emailVerified"`
}

// lookupUser 读取用户，不存在时返回 UserNotFound
func (s *Service) lookupUser(ctx context.Context, id string) (*entity.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Database(err, "failed to get user")
	}
	if user == nil {
		return nil, userNotFound()
	}
	return user, nil
}

// CreateUser 创建用户，需要管理员或经理；只有管理员可创建管理员
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*entity.User, error) {
	ctx, span := tracer.Start(ctx, "directory.CreateUser")
	defer span.End()

	in.Email = entity.NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	actor, err := s.policy.RequireRole(ctx, entity.UserRoleAdmin, entity.UserRoleManager)
	if err != nil {
		return nil, err
	}
	if in.Role == entity.UserRoleAdmin && !actor.IsAdmin() {
		return nil, errors.Forbidden("only admins can create admin users")
	}

	user, err := s.createUser(ctx, in)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit.Log(ctx, entity.AuditUserCreated, "", map[string]any{
		"userId": user.ID,
		"email":  user.Email,
		"role":   string(user.Role),
	})
	return user, nil
}

func (s *Service) createUser(ctx context.Context, in CreateUserInput) (*entity.User, error) {
	user := entity.NewUser(in.Email, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), in.Role)
	if err := user.SetPassword(in.Password, s.opts.BcryptCost); err != nil {
		return nil, errors.Internal(err, "failed to hash password")
	}
	if err := s.users.Create(ctx, user); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, errors.Conflict("email already registered")
		}
		return nil, errors.Database(err, "failed to create user")
	}
	return user, nil
}

// EnsureAdmin 初始化管理员账号，已存在时直接返回
func (s *Service) EnsureAdmin(ctx context.Context, in CreateUserInput) (*entity.User, bool, error) {
	in.Email = entity.NormalizeEmail(in.Email)
	in.Role = entity.UserRoleAdmin
	if err := validate.Struct(in); err != nil {
		return nil, false, err
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, false, errors.Database(err, "failed to get user")
	}
	if existing != nil {
		return existing, false, nil
	}

	user, err := s.createUser(ctx, in)
	if err != nil {
		return nil, false, err
	}
	s.audit.Log(ctx, entity.AuditUserCreated, "", map[string]any{"userId": user.ID, "email": user.Email, "role": string(user.Role), "bootstrap": true})
	return user, true, nil
}

// GetUser 获取用户，本人或经理及以上可见
func (s *Service) GetUser(ctx context.Context, id string) (*entity.User, error) {
	ctx, span := tracer.Start(ctx, "directory.GetUser")
	defer span.End()

	user, err := s.lookupUser(ctx, id)
	if err != nil {
		return nil, err
	}
	actor, err := s.policy.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if actor.ID != user.ID && !actor.IsManager() {
		return nil, errors.Forbidden("access to user denied")
	}
	return user, nil
}

// GetUserByEmail 按邮箱获取用户，需要经理及以上
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	ctx, span := tracer.Start(ctx, "directory.GetUserByEmail")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, entity.NormalizeEmail(email))
	if err != nil {
		return nil, errors.Database(err, "failed to get user")
	}
	if user == nil {
		return nil, userNotFound()
	}
	actor, err := s.policy.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if actor.ID != user.ID && !actor.IsManager() {
		return nil, errors.Forbidden("access to user denied")
	}
	return user, nil
}

// UpdateUser 部分更新用户
func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (*entity.User, error) {
	ctx, span := tracer.Start(ctx, "directory.UpdateUser")
	defer span.End()

	if in.Email != nil {
		email := entity.NormalizeEmail(*in.Email)
		in.Email = &email
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.lookupUser(ctx, id)
	if err != nil {
		return nil, err
	}
	actor, err := s.policy.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin():
	case actor.ID == user.ID && !in.privileged():
	default:
		return nil, errors.Forbidden("not allowed to update this user")
	}

	changes := applyUserUpdate(user, in)
	if len(changes) == 0 {
		return user, nil
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case stderrors.Is(err, repository.ErrDuplicate):
			return nil, errors.Conflict("email already registered")
		case stderrors.Is(err, repository.ErrStaleState):
			return nil, userNotFound()
		}
		span.RecordError(err)
		return nil, errors.Database(err, "failed to update user")
	}

	s.audit.Log(ctx, entity.AuditUserUpdated, "", map[string]any{"userId": user.ID, "changes": changes})
	return user, nil
}

func applyUserUpdate(u *entity.User, in UpdateUserInput) []string {
	changes := make([]string, 0, 7)
	if in.Email != nil && *in.Email != u.Email {
		u.Email = *in.Email
		u.EmailVerified = false
		changes = append(changes, "email")
	}
	if in.FirstName != nil && *in.FirstName != u.FirstName {
		u.FirstName = strings.TrimSpace(*in.FirstName)
		changes = append(changes, "firstName")
	}
	if in.LastName != nil && *in.LastName != u.LastName {
		u.LastName = strings.TrimSpace(*in.LastName)
		changes = append(changes, "lastName")
	}
	if in.Role != nil && *in.Role != u.Role {
		u.Role = *in.Role
		changes = append(changes, "role")
	}
	if in.Status != nil && *in.Status != u.Status {
		u.Status = *in.Status
		changes = append(changes, "status")
	}
	if in.EmailVerified != nil && *in.EmailVerified != u.EmailVerified {
		u.EmailVerified = *in.EmailVerified
		changes = append(changes, "emailVerified")
	}
	if in.Preferences != nil && *in.Preferences != u.Preferences {
		u.Preferences = *in.Preferences
		changes = append(changes, "preferences")
	}
	return changes
}

// DeleteUser 删除用户，仅管理员
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "directory.DeleteUser")
	defer span.End()

	user, err := s.lookupUser(ctx, id)
	if err != nil {
		return err
	}
	actor, err := s.policy.RequireRole(ctx, entity.UserRoleAdmin)
	if err != nil {
		return err
	}
	if actor.ID == user.ID {
		return errors.Conflict("admins cannot delete their own account")
	}

	deleted, err := s.users.Delete(ctx, id)
	if err != nil {
		span.RecordError(err)
		return errors.Database(err, "failed to delete user")
	}
	if !deleted {
		return userNotFound()
	}

	s.audit.Log(ctx, entity.AuditUserDeleted, "", map[string]any{"userId": user.ID, "email": user.Email})
	return nil
}

// ListUsers 分页列出用户，需要经理及以上
func (s *Service) ListUsers(ctx context.Context, in ListUsersInput, pagination repository.Pagination) (*repository.PagedResult[*entity.User], error) {
	ctx, span := tracer.Start(ctx, "directory.ListUsers")
	defer span.End()

	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.policy.RequireRole(ctx, entity.UserRoleAdmin, entity.UserRoleManager); err != nil {
		return nil, err
	}

	result, err := s.users.List(ctx, repository.UserFilter{
		Status:        in.Status,
		Role:          in.Role,
		EmailVerified: in.EmailVerified,
	}, pagination)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Database(err, "failed to list users")
	}
	return result, nil
}

// ChangePassword 校验当前密码后修改密码，仅限本人
// 当前密码错误时不修改存储的散列。
func (s *Service) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	ctx, span := tracer.Start(ctx, "directory.ChangePassword")
	defer span.End()

	if err := validate.Var("currentPassword", currentPassword, "required"); err != nil {
		return err
	}
	if err := validate.Var("newPassword", newPassword, "required,min=8,max=72"); err != nil {
		return errors.InvalidParam("newPassword must be between 8 and 72 characters")
	}

	user, err := s.lookupUser(ctx, id)
	if err != nil {
		return err
	}
	actor, err := s.policy.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if actor.ID != user.ID {
		return errors.Forbidden("users can only change their own password")
	}

	if !user.CheckPassword(currentPassword) {
		return errors.New(errors.CodeInvalidCredentials, "current password is incorrect")
	}
	if err := user.SetPassword(newPassword, s.opts.BcryptCost); err != nil {
		return errors.Internal(err, "failed to hash password")
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, user.PasswordHash); err != nil {
		span.RecordError(err)
		return errors.Database(err, "failed to update password")
	}

	s.audit.Log(ctx, entity.AuditPasswordChanged, "", map[string]any{"userId": user.ID})
	return nil
}

// RequestPasswordReset 签发一次性重置令牌并投递
// 邮箱不存在时同样返回成功，避免泄露账号是否存在。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "directory.RequestPasswordReset")
	defer span.End()

	email = entity.NormalizeEmail(email)
	if err := validate.Var("email", email, "required,email"); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return errors.Database(err, "failed to get user")
	}
	if user == nil || !user.IsActive() {
		logger.Debug(ctx, "password reset requested for unknown or inactive account")
		return nil
	}

	token, err := s.issueResetToken(ctx, user)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.notifier.SendPasswordReset(ctx, notifyReset(user, token)); err != nil {
		logger.Error(ctx, "failed to deliver password reset", err, "user_id", user.ID)
	}

	s.audit.Log(ctx, entity.AuditPasswordResetIssue, "", map[string]any{"userId": user.ID})
	return nil
}

// SetPasswordWithToken 使用重置令牌设置新密码，令牌无效、过期或已使用时返回 InvalidResetToken
func (s *Service) SetPasswordWithToken(ctx context.Context, token, newPassword string) error {
	ctx, span := tracer.Start(ctx, "directory.SetPasswordWithToken")
	defer span.End()

	if err := validate.Var("token", token, "required"); err != nil {
		return err
	}
	if err := validate.Var("password", newPassword, "required,min=8,max=72"); err != nil {
		return errors.InvalidParam("password must be between 8 and 72 characters")
	}

	var userID string
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		consumed, err := s.resets.Consume(ctx, hashResetToken(token), time.Now().UTC())
		if err != nil {
			return errors.Database(err, "failed to consume reset token")
		}
		if consumed == nil {
			return errors.New(errors.CodeInvalidResetToken, "reset token is invalid or expired")
		}

		user, err := s.users.GetByID(ctx, consumed.UserID)
		if err != nil {
			return errors.Database(err, "failed to get user")
		}
		if user == nil {
			return errors.New(errors.CodeInvalidResetToken, "reset token is invalid or expired")
		}
		if err := user.SetPassword(newPassword, s.opts.BcryptCost); err != nil {
			return errors.Internal(err, "failed to hash password")
		}
		if err := s.users.UpdatePasswordHash(ctx, user.ID, user.PasswordHash); err != nil {
			return errors.Database(err, "failed to update password")
		}
		userID = user.ID
		return nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("reset.accepted", false))
		return err
	}

	s.audit.Log(ctx, entity.AuditPasswordResetDone, "", map[string]any{"userId": userID})
	return nil
}
