package internal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSiteID = "6f1c2b1e-8a4f-4b7e-9a55-2d1f0e3c4b5a"

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sitetier")
	t.Setenv("SITE_ID", testSiteID)
	t.Setenv("ENV", "development")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "smtp", cfg.MailTransport)
	assert.Equal(t, "usd", cfg.StripeCurrency)
	assert.Equal(t, 24*time.Hour, cfg.NotifyInterval)
	assert.Equal(t, testSiteID, cfg.SiteID.String())
}

func TestNewConfig_ParsesAdminEmails(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sitetier")
	t.Setenv("SITE_ID", testSiteID)
	t.Setenv("ENV", "development")
	t.Setenv("ADMIN_EMAILS", " Dev@Example.com, ,ops@example.com")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"dev@example.com", "ops@example.com"}, cfg.AdminEmails)
}

func TestNewConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing database url",
			env:  map[string]string{"SITE_ID": testSiteID},
		},
		{
			name: "missing site id",
			env:  map[string]string{"DATABASE_URL": "postgres://localhost/x"},
		},
		{
			name: "malformed site id",
			env:  map[string]string{"DATABASE_URL": "postgres://localhost/x", "SITE_ID": "site-1"},
		},
		{
			name: "unknown mail transport",
			env: map[string]string{
				"DATABASE_URL":   "postgres://localhost/x",
				"SITE_ID":        testSiteID,
				"MAIL_TRANSPORT": "carrier-pigeon",
			},
		},
		{
			name: "production without admin password",
			env: map[string]string{
				"DATABASE_URL": "postgres://localhost/x",
				"SITE_ID":      testSiteID,
				"ENV":          "production",
			},
		},
		{
			name: "notify interval too short",
			env: map[string]string{
				"DATABASE_URL":    "postgres://localhost/x",
				"SITE_ID":         testSiteID,
				"NOTIFY_INTERVAL": "10s",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("SITE_ID", "")
			t.Setenv("ENV", "development")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}

func TestNewCommandConfig_SiteIDOptional(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/x")
	t.Setenv("SITE_ID", "")
	t.Setenv("ENV", "production")
	t.Setenv("ADMIN_PASSWORD_HASH", "")

	cfg, err := NewCommandConfig()
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, cfg.SiteID)

	t.Setenv("SITE_ID", "site-1")
	_, err = NewCommandConfig()
	assert.Error(t, err)
}
