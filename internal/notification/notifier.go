// Package notification renders and delivers transactional emails.
package notification

import (
	"context"
	"log/slog"
)

// Template identifiers.
const (
	TemplatePasswordReset     = "password-reset"
	TemplateEmailVerification = "email-verification"
	TemplatePasswordChanged   = "password-changed"
	TemplateWelcome           = "welcome"
)

// Message is a templated email.
type Message struct {
	To         string
	Subject    string
	TemplateID string
	Params     map[string]any
}

// Notifier delivers messages. Implementations must honor ctx deadlines.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier logs messages instead of sending them. It is used when SMTP
// is not configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send implements Notifier.
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if _, err := Render(msg.TemplateID, msg.Params); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "email not sent (smtp not configured)",
		"to", msg.To,
		"subject", msg.Subject,
		"template", msg.TemplateID,
		"params", msg.Params,
	)
	return nil
}
