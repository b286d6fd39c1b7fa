package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"saas-tenancy-api/internal/config"
)

func TestResetLink(t *testing.T) {
	assert.Equal(t, "https://app.example.com/reset?token=abc", resetLink("https://app.example.com/reset", "abc"))
	assert.Equal(t, "https://app.example.com/reset?lang=en&token=a%2Bb", resetLink("https://app.example.com/reset?lang=en", "a+b"))
	assert.Equal(t, "abc", resetLink("", "abc"))
}

func TestNew_FallsBackToLogNotifier(t *testing.T) {
	n := New(&config.MailConfig{})
	_, ok := n.(*LogNotifier)
	assert.True(t, ok)
	assert.NoError(t, n.SendPasswordReset(context.Background(), PasswordReset{Email: "a@example.com", Token: "t"}))
}
