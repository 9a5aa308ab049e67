// Package auth provides authentication context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const adminContextKey contextKey = "admin"

// Admin is the identity that passed the admin basic auth check.
type Admin struct {
	Username string
}

// GetAdmin retrieves the authenticated admin from the context.
//
// Returns nil if the request did not pass through the admin middleware.
func GetAdmin(ctx context.Context) *Admin {
	admin, ok := ctx.Value(adminContextKey).(*Admin)
	if !ok {
		return nil
	}
	return admin
}

// GetAdminFromRequest is GetAdmin for the request context.
func GetAdminFromRequest(r *http.Request) *Admin {
	return GetAdmin(r.Context())
}

// SetAdmin stores the authenticated admin in the context.
func SetAdmin(ctx context.Context, admin *Admin) context.Context {
	return context.WithValue(ctx, adminContextKey, admin)
}

// AdminName returns the admin username for logging, or "unknown".
func AdminName(ctx context.Context) string {
	if admin := GetAdmin(ctx); admin != nil {
		return admin.Username
	}
	return "unknown"
}
