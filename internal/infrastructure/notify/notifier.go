// Package notify 提供密码重置等通知投递
package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/pkg/logger"
)

// PasswordReset 密码重置通知内容
type PasswordReset struct {
	Email     string
	FirstName string
	Token     string
}

// Notifier 通知投递接口
type Notifier interface {
	SendPasswordReset(ctx context.Context, msg PasswordReset) error
}

// New 按配置选择 SendGrid 或仅记录日志的实现
func New(cfg *config.MailConfig) Notifier {
	if cfg.SendGrid.Enabled && cfg.SendGrid.APIKey != "" {
		return NewSendGridNotifier(cfg)
	}
	return &LogNotifier{}
}

// SendGridNotifier 通过 SendGrid 发送邮件
type SendGridNotifier struct {
	client       *sendgrid.Client
	fromEmail    string
	fromName     string
	resetURLBase string
}

// NewSendGridNotifier 创建 SendGrid 通知器
func NewSendGridNotifier(cfg *config.MailConfig) *SendGridNotifier {
	return &SendGridNotifier{
		client:       sendgrid.NewSendClient(cfg.SendGrid.APIKey),
		fromEmail:    cfg.SendGrid.FromEmail,
		fromName:     cfg.SendGrid.FromName,
		resetURLBase: cfg.ResetURLBase,
	}
}

// SendPasswordReset 发送重置链接
func (n *SendGridNotifier) SendPasswordReset(ctx context.Context, msg PasswordReset) error {
	link := resetLink(n.resetURLBase, msg.Token)
	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail(msg.FirstName, msg.Email)
	plain := fmt.Sprintf("Use the following link to reset your password: %s", link)
	html := fmt.Sprintf(`<p>Use the following link to reset your password:</p><p><a href="%s">Reset password</a></p>`, link)

	resp, err := n.client.SendWithContext(ctx, mail.NewSingleEmail(from, "Reset your password", to, plain, html))
	if err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid rejected reset email: status %d", resp.StatusCode)
	}

	logger.Info(ctx, "password reset email sent", "status", resp.StatusCode)
	return nil
}

// LogNotifier 未配置邮件服务时仅记录投递事件，不输出令牌
type LogNotifier struct{}

// SendPasswordReset 记录一次投递
func (LogNotifier) SendPasswordReset(ctx context.Context, msg PasswordReset) error {
	logger.Info(ctx, "password reset requested, mail delivery disabled", "email_domain", emailDomain(msg.Email))
	return nil
}

func resetLink(base, token string) string {
	if base == "" {
		return token
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func emailDomain(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}
