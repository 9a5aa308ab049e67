package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net/smtp"
	"strings"
	"time"
)

// =============================================================================
// SMTP Transport Implementation
// =============================================================================

// SMTPTransport sends messages via SMTP.
//
// This implementation works with:
// - Mailhog (development): No authentication required
// - Any SMTP relay (production): Uses username/password authentication
type SMTPTransport struct {
	config SMTPConfig
	logger *slog.Logger

	// sendMail is smtp.SendMail; replaced in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPTransport creates a new SMTP transport.
func NewSMTPTransport(config SMTPConfig, logger *slog.Logger) *SMTPTransport {
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	return &SMTPTransport{
		config:   config,
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

// Deliver sends msg to all of its recipients in one SMTP transaction.
func (t *SMTPTransport) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	raw, err := t.buildMessage(msg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", t.config.Host, t.config.Port)

	// Create auth if credentials are provided (not needed for Mailhog)
	var auth smtp.Auth
	if t.config.Username != "" && t.config.Password != "" {
		auth = smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
	}

	if err := t.sendMail(addr, auth, t.config.From, msg.To, raw); err != nil {
		t.logger.Error("failed to send email",
			"to", msg.To,
			"subject", msg.Subject,
			"error", err,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	t.logger.Info("email sent",
		"to", msg.To,
		"subject", msg.Subject,
	)

	return nil
}

// boundary separates the text and HTML parts.
const boundary = "===============SITETIER_BOUNDARY==============="

// buildMessage constructs the raw email message with headers.
func (t *SMTPTransport) buildMessage(msg Message, date time.Time) ([]byte, error) {
	var buf bytes.Buffer

	fromHeader := fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", t.config.FromName), t.config.From)

	buf.WriteString(fmt.Sprintf("From: %s\r\n", fromHeader))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", date.Format(time.RFC1123Z)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", msg.TextBody},
		{"text/html", msg.HTMLBody},
	}
	for _, part := range parts {
		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString(fmt.Sprintf("Content-Type: %s; charset=utf-8\r\n", part.contentType))
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
		buf.WriteString("\r\n")

		qp := quotedprintable.NewWriter(&buf)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
		buf.WriteString("\r\n")
	}

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return buf.Bytes(), nil
}

var _ Transport = (*SMTPTransport)(nil)
