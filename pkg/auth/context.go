package auth

import (
	"context"

	"github.com/resalt-dev/resalt/pkg/salt"
)

// AuthStatus describes an authenticated caller: who they are, the serialized
// permission document in force, the session they presented, and the master
// token attached to that session (nil when the master login failed or has
// not happened yet).
type AuthStatus struct {
	UserID    string
	Perms     string
	SessionID string
	SaltToken *salt.Token
}

// AuthStatusContextKey is the key used to store AuthStatus in the request context.
//
// Using an empty struct as the key prevents collisions with other context keys,
// as each empty struct type is distinct even if they have the same name in different packages.
type AuthStatusContextKey struct{}

// WithAuthStatus stores an AuthStatus in the context.
// If status is nil, the original context is returned unchanged.
func WithAuthStatus(ctx context.Context, status *AuthStatus) context.Context {
	if status == nil {
		return ctx
	}
	return context.WithValue(ctx, AuthStatusContextKey{}, status)
}

// AuthStatusFromContext retrieves an AuthStatus from the context.
// Returns the status and true if present, nil and false otherwise.
func AuthStatusFromContext(ctx context.Context) (*AuthStatus, bool) {
	status, ok := ctx.Value(AuthStatusContextKey{}).(*AuthStatus)
	return status, ok
}
