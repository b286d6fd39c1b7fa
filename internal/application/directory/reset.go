package directory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/infrastructure/notify"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/utils"
)

const resetTokenBytes = 32

func hashResetToken(token string) string {
	return utils.HashToken(token)
}

// issueResetToken 生成令牌，存储只保留摘要
func (s *Service) issueResetToken(ctx context.Context, user *entity.User) (string, error) {
	token, err := utils.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return "", errors.Internal(err, "failed to generate reset token")
	}

	now := time.Now().UTC()
	record := &entity.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashResetToken(token),
		ExpiresAt: now.Add(s.opts.PasswordResetTTL),
		CreatedAt: now,
	}
	if err := s.resets.Create(ctx, record); err != nil {
		return "", errors.Database(err, "failed to store reset token")
	}
	return token, nil
}

func notifyReset(user *entity.User, token string) notify.PasswordReset {
	return notify.PasswordReset{
		Email:     user.Email,
		FirstName: user.FirstName,
		Token:     token,
	}
}
