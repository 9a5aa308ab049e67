package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// MetricsRealm is the basic auth realm presented for the Prometheus scrape
// endpoint.
const MetricsRealm = "metrics"

// MetricsAuthMiddleware guards /metrics with the static scrape credentials
// from METRICS_USERNAME and METRICS_PASSWORD. Failed scrapes count against
// the same per-client lockout as admin logins.
type MetricsAuthMiddleware struct {
	username [sha256.Size]byte
	password [sha256.Size]byte
	enabled  bool
	failures *RateLimiter
	logger   *slog.Logger
}

// NewMetricsAuthMiddleware creates the scrape guard. With neither a username
// nor a password configured the endpoint is open. failures may be nil to
// disable lockout.
func NewMetricsAuthMiddleware(username, password string, failures *RateLimiter, logger *slog.Logger) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{
		username: sha256.Sum256([]byte(username)),
		password: sha256.Sum256([]byte(password)),
		enabled:  username != "" || password != "",
		failures: failures,
		logger:   logger,
	}
}

// Handler rejects scrapes without the configured credentials.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getClientIP(r)
		if m.failures != nil && m.failures.Blocked(clientIP) {
			tooManyRequests(w, m.failures.TimeUntilReset(clientIP))
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			unauthorized(w, MetricsRealm)
			return
		}

		if !m.matches(user, pass) {
			if m.failures != nil {
				m.failures.RecordFailure(clientIP)
			}
			m.logger.Warn("metrics scrape rejected", "ip", clientIP, "username", user)
			unauthorized(w, MetricsRealm)
			return
		}

		if m.failures != nil {
			m.failures.Reset(clientIP)
		}
		next.ServeHTTP(w, r)
	})
}

// matches compares digests so neither the value nor the length of the
// configured credentials leaks through timing.
func (m *MetricsAuthMiddleware) matches(user, pass string) bool {
	u := sha256.Sum256([]byte(user))
	p := sha256.Sum256([]byte(pass))
	userOK := subtle.ConstantTimeCompare(u[:], m.username[:])
	passOK := subtle.ConstantTimeCompare(p[:], m.password[:])
	return userOK&passOK == 1
}
