package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPTransport_BuildMessage(t *testing.T) {
	transport := NewSMTPTransport(SMTPConfig{Host: "localhost", Port: 1025}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	raw, err := transport.buildMessage(Message{
		To:       []string{"a@example.com", "b@example.com"},
		Subject:  "Welcome",
		TextBody: "Hello",
		HTMLBody: "<p>Hello</p>",
	}, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	msg := string(raw)
	assert.Contains(t, msg, "From: Site Tiers <noreply@example.com>\r\n")
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: Welcome\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, msg, "Content-Type: text/html; charset=utf-8")
	assert.True(t, strings.HasSuffix(msg, "--"+boundary+"--\r\n"))
}

func TestSMTPTransport_Deliver(t *testing.T) {
	transport := NewSMTPTransport(SMTPConfig{Host: "mail.example.com", Port: 587, Username: "user", Password: "pass"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var gotAddr string
	var gotTo []string
	var gotAuth smtp.Auth
	transport.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo = addr, a, to
		return nil
	}

	err := transport.Deliver(context.Background(), Message{To: []string{"a@example.com"}, Subject: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, []string{"a@example.com"}, gotTo)
	assert.NotNil(t, gotAuth)

	transport.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("421 service not available")
	}
	assert.Error(t, transport.Deliver(context.Background(), Message{To: []string{"a@example.com"}}))

	assert.Error(t, transport.Deliver(context.Background(), Message{}), "no recipients")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, transport.Deliver(ctx, Message{To: []string{"a@example.com"}}), context.Canceled)
}
