package internal

import (
	"fmt"
	"log/slog"

	"github.com/DukeRupert/sitetier/internal/email"
)

// NewMailer builds the notification mailer for the configured transport.
func NewMailer(cfg *Config, logger *slog.Logger) (*email.Mailer, error) {
	renderer, err := email.NewRenderer(email.DefaultTemplates(), cfg.StripeCurrency)
	if err != nil {
		return nil, fmt.Errorf("email templates: %w", err)
	}

	var transport email.Transport
	switch cfg.MailTransport {
	case "log":
		transport = email.NewLogTransport(logger)
	default:
		transport = email.NewSMTPTransport(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, logger)
	}

	return email.NewMailer(renderer, transport, email.MailerConfig{
		SiteDevelopers: cfg.AdminEmails,
		BaseURL:        cfg.BaseURL,
	}, logger), nil
}
