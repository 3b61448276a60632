package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
)

// Validator checks a presented session token and returns the caller's auth
// status.
type Validator interface {
	Validate(ctx context.Context, tokenID string) (*AuthStatus, error)
}

// RequireAuth returns middleware that authenticates every request through the
// validator and attaches the resulting AuthStatus to the request context.
// Credentials are read from the Authorization bearer header, falling back to
// the "token" query parameter for EventSource clients that cannot set
// headers.
func RequireAuth(validator Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing credentials")
				return
			}

			status, err := validator.Validate(r.Context(), token)
			if err != nil {
				code := errors.StatusFor(err)
				if code != http.StatusUnauthorized {
					logger.Errorw("session validation failed", "error", err)
					writeAuthError(w, code, "session validation failed")
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthStatus(r.Context(), status)))
		})
	}
}

// RequirePermission returns middleware that rejects callers whose perms do
// not grant the permission id. It must run inside RequireAuth.
func RequirePermission(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			status, ok := AuthStatusFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "missing credentials")
				return
			}
			if !HasPermission(status.Perms, id) {
				writeAuthError(w, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func writeAuthError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
