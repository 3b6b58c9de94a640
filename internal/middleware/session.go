// Package middleware provides HTTP middlewares for session enforcement and
// request logging.
package middleware

import (
	"context"
	"net/http"

	"github.com/atinyakov/crmkeeper/internal/models"
)

type ctxKey string

const tenantKey ctxKey = "tenant"

// SessionSource reports the active session of the process.
type SessionSource interface {
	Session() (models.Session, bool)
}

// RequireSession rejects requests with 401 when no session is active.
//
// On success the tenant email of the session is stored in the request
// context, so handlers can read it with GetTenantFromContext.
func RequireSession(sessions SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := sessions.Session()
			if !ok {
				http.Error(w, "no active session", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), tenantKey, session.Tenant())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantFromContext extracts the tenant email from the request context.
// Returns an empty string if not found.
func GetTenantFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(tenantKey).(string); ok {
		return s
	}
	return ""
}
