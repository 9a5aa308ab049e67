package email

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/metrics"
)

// MailerConfig configures a Mailer.
type MailerConfig struct {
	// SiteDevelopers receive notifications sent without recipients.
	SiteDevelopers []string

	// BaseURL is used for links in templates (e.g., "http://localhost:8080").
	BaseURL string
}

// Mailer renders notifications and hands them to a Transport.
type Mailer struct {
	renderer  *Renderer
	transport Transport
	config    MailerConfig
	logger    *slog.Logger
}

// NewMailer creates a new Mailer.
func NewMailer(renderer *Renderer, transport Transport, config MailerConfig, logger *slog.Logger) *Mailer {
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	return &Mailer{
		renderer:  renderer,
		transport: transport,
		config:    config,
		logger:    logger,
	}
}

// Send renders and delivers n. Each recipient gets a message rendered with
// .User set to them. Delivery errors are wrapped in domain.ErrDelivery and
// returned unless n.FailSilently is set.
func (m *Mailer) Send(ctx context.Context, n Notification) error {
	const op = "Mailer.Send"

	if !m.renderer.Has(n.Template) {
		return domain.Errorf(domain.EINTERNAL, op, "email template %q not found", n.Template)
	}

	data := TemplateData{
		BaseURL: m.config.BaseURL,
		Year:    time.Now().Year(),
		Extra:   n.Extra,
	}
	if n.Info != nil {
		data.TierInfo = n.Info
		data.Site = n.Info.Site
		data.Tier = n.Info.Tier
	}

	if n.Recipients == nil {
		if len(m.config.SiteDevelopers) == 0 {
			m.logger.Warn("no site developers configured, dropping email", "template", n.Template)
			return nil
		}
		return m.deliver(ctx, op, n, data, m.config.SiteDevelopers)
	}

	for _, owner := range n.Recipients {
		if owner.Email == "" {
			continue
		}
		data.User = &owner
		if err := m.deliver(ctx, op, n, data, []string{owner.Email}); err != nil {
			return err
		}
	}

	return nil
}

func (m *Mailer) deliver(ctx context.Context, op string, n Notification, data TemplateData, to []string) error {
	rendered, err := m.renderer.Render(n.Template, data)
	if err != nil {
		m.logger.Error("failed to render email", "template", n.Template, "error", err)
		return domain.Internal(err, op, "Failed to render email")
	}

	err = m.transport.Deliver(ctx, Message{
		To:       to,
		Subject:  rendered.Subject,
		TextBody: rendered.TextBody,
		HTMLBody: rendered.HTMLBody,
	})
	if err != nil {
		metrics.EmailsTotal.WithLabelValues(n.Template, "failed").Inc()
		if n.FailSilently {
			m.logger.Warn("email delivery failed silently", "template", n.Template, "to", to, "error", err)
			return nil
		}
		return domain.DeliveryFailure(err, op, strings.Join(to, ", "))
	}

	metrics.EmailsTotal.WithLabelValues(n.Template, "sent").Inc()
	return nil
}
