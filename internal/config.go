package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// SiteID is the site served by this instance's admin pages.
	SiteID uuid.UUID

	// Mail configuration
	MailTransport string // "smtp" or "log"
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	SMTPFromName  string

	// Site developers, emailed when a notification has no explicit recipients
	AdminEmails []string

	// Application base URL (for email and checkout links)
	BaseURL string

	// Admin access control for /admin routes
	AdminUsername     string
	AdminPasswordHash string // bcrypt hash

	// Stripe Billing Configuration
	// In development, billing handlers function as stubs if these are empty.
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration

	// How often each site's notification throttles are evaluated
	NotifyInterval time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

// NewConfig loads the server configuration. The server serves one site, so
// SITE_ID is required.
func NewConfig() (*Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.SiteID == uuid.Nil {
		return nil, fmt.Errorf("SITE_ID is required")
	}

	if cfg.Env != "development" && cfg.AdminPasswordHash == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH is required outside development")
	}

	return cfg, nil
}

// NewCommandConfig loads the configuration for sitectl, where SITE_ID is
// optional and admin credentials are unused.
func NewCommandConfig() (*Config, error) {
	return loadConfig()
}

func loadConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// SMTP defaults for Mailhog (development)
		MailTransport: getEnv("MAIL_TRANSPORT", "smtp"),
		SMTPHost:      getEnv("SMTP_HOST", "localhost"),
		SMTPPort:      getEnvInt("SMTP_PORT", 1025),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:      getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPFromName:  getEnv("SMTP_FROM_NAME", "Site Tiers"),

		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeCurrency:      strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),

		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 1),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 15*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", time.Minute),

		NotifyInterval: getEnvDuration("NOTIFY_INTERVAL", 24*time.Hour),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Parse admin emails from comma-separated environment variable
	adminEmailsStr := getEnv("ADMIN_EMAILS", "")
	if adminEmailsStr != "" {
		emails := strings.Split(adminEmailsStr, ",")
		for _, email := range emails {
			trimmed := strings.TrimSpace(strings.ToLower(email))
			if trimmed != "" {
				cfg.AdminEmails = append(cfg.AdminEmails, trimmed)
			}
		}
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if siteID := os.Getenv("SITE_ID"); siteID != "" {
		id, err := uuid.Parse(siteID)
		if err != nil {
			return nil, fmt.Errorf("SITE_ID must be a UUID, got: %s", siteID)
		}
		cfg.SiteID = id
	}

	if cfg.MailTransport != "smtp" && cfg.MailTransport != "log" {
		return nil, fmt.Errorf("MAIL_TRANSPORT must be either 'smtp' or 'log', got: %s", cfg.MailTransport)
	}

	if cfg.NotifyInterval < time.Minute {
		return nil, fmt.Errorf("NOTIFY_INTERVAL must be at least 1m, got: %v", cfg.NotifyInterval)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
