// Package middleware contains HTTP middleware for the site tier service.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler
// and are composed with Stack.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/sitetier/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

// AdminRealm is the basic auth realm presented for /admin routes.
const AdminRealm = "admin"

// =============================================================================
// Admin Auth Middleware
// =============================================================================

// AdminAuthMiddleware guards the admin pages with HTTP basic auth checked
// against a bcrypt hash. Repeated failures from one client are throttled.
type AdminAuthMiddleware struct {
	username     string
	passwordHash []byte
	failures     *RateLimiter
	logger       *slog.Logger
}

// NewAdminAuthMiddleware creates the admin guard. An empty passwordHash
// disables the password check (development only; config refuses it elsewhere).
// failures may be nil to disable lockout.
func NewAdminAuthMiddleware(username, passwordHash string, failures *RateLimiter, logger *slog.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		username:     username,
		passwordHash: []byte(passwordHash),
		failures:     failures,
		logger:       logger,
	}
}

// RequireAdmin rejects requests without valid admin credentials and stores
// the admin identity in the request context.
func (m *AdminAuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.passwordHash) == 0 {
			ctx := auth.SetAdmin(r.Context(), &auth.Admin{Username: m.username})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		clientIP := getClientIP(r)
		if m.failures != nil && m.failures.Blocked(clientIP) {
			m.logger.Warn("admin login blocked", "ip", clientIP)
			tooManyRequests(w, m.failures.TimeUntilReset(clientIP))
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			unauthorized(w, AdminRealm)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
		passErr := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(pass))
		if !userMatch || passErr != nil {
			if m.failures != nil {
				m.failures.RecordFailure(clientIP)
			}
			m.logger.Warn("admin login failed", "ip", clientIP, "username", user)
			unauthorized(w, AdminRealm)
			return
		}

		if m.failures != nil {
			m.failures.Reset(clientIP)
		}

		ctx := auth.SetAdmin(r.Context(), &auth.Admin{Username: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// unauthorized sends a 401 response with a WWW-Authenticate challenge.
func unauthorized(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	adminStack := Stack(adminAuth.RequireAdmin, csrf.Protect)
//	mux.Handle("GET /admin", adminStack(indexHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

var _ func(http.Handler) http.Handler = (&AdminAuthMiddleware{}).RequireAdmin
