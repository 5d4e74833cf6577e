package identity

import (
	"context"
	"log/slog"
)

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// LogMailer writes reset links to the structured log instead of sending email.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password_reset_email", "component", "identity", "to", to, "link", link)
	return nil
}
