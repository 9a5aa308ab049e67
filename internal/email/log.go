package email

import (
	"context"
	"log/slog"
)

// LogTransport logs messages instead of delivering them. Used in development
// when no SMTP server is running.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a transport that writes messages to logger.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Deliver logs the message.
func (t *LogTransport) Deliver(ctx context.Context, msg Message) error {
	t.logger.InfoContext(ctx, "email logged",
		"to", msg.To,
		"subject", msg.Subject,
	)
	t.logger.DebugContext(ctx, "email body", "text", msg.TextBody)
	return nil
}

var _ Transport = (*LogTransport)(nil)
