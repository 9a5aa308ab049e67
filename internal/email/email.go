// Package email renders and delivers the site-owner notifications.
//
// Templates live in an embedded filesystem as <name>/subject.txt and
// <name>/body.md. Rendered subjects are stripped of markup; rendered bodies
// are stripped and then converted from Markdown to an HTML alternative.
// Delivery goes through a Transport:
// - SMTPTransport (Mailhog in development, any SMTP relay in production)
// - LogTransport (logs messages instead of sending them)
package email

import (
	"context"

	"github.com/DukeRupert/sitetier/internal/domain"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Transport delivers a single rendered message.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// =============================================================================
// Email Data Types
// =============================================================================

// Message is a rendered email with plain text and HTML alternatives.
type Message struct {
	To       []string // Recipient email addresses
	Subject  string   // Subject line, markup stripped
	TextBody string   // Plain text body
	HTMLBody string   // HTML alternative of TextBody
}

// Notification is a request to email the named template to recipients.
type Notification struct {
	// Template names the template directory, e.g. "welcome".
	Template string

	// Recipients receive one message each; owners without an email are
	// skipped. A nil slice sends a single message to the site developers.
	Recipients []domain.Owner

	// Info is the site's tier record; its site and tier are exposed to the
	// templates as .Site and .Tier.
	Info *domain.SiteTierInfo

	// Extra is exposed to the templates as .Extra.
	Extra map[string]any

	// FailSilently logs delivery errors instead of returning them.
	FailSilently bool
}

// =============================================================================
// Configuration Types
// =============================================================================

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname (e.g., "localhost" for Mailhog)
	Port     int    // SMTP server port (e.g., 1025 for Mailhog)
	Username string // SMTP authentication username (empty for Mailhog)
	Password string // SMTP authentication password (empty for Mailhog)
	From     string // Default sender email address
	FromName string // Default sender display name
}

const (
	// DefaultFromEmail is the default sender email for notifications.
	DefaultFromEmail = "noreply@example.com"

	// DefaultFromName is the default sender display name.
	DefaultFromName = "Site Tiers"
)
