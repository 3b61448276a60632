package sessions

import (
	"context"

	"github.com/resalt-dev/resalt/pkg/auth"
	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/salt"
)

// Call issues a master call under the caller's cached master token. When
// the master reports the token unauthorized and the token has matured,
// the token is renewed and the call retried exactly once. A rejection of
// a token younger than the maturity window is not retried: that token was
// refused for a reason other than expiry, and renewing would loop.
//
// A session with no cached token (the master was unreachable at login)
// renews first and calls once.
func Call[T any](ctx context.Context, c *Coordinator, status *auth.AuthStatus, fn func(*salt.Token) (T, error)) (T, error) {
	var zero T

	if status.SaltToken == nil {
		if err := c.RenewSaltToken(ctx, status); err != nil {
			return zero, err
		}
		out, err := fn(status.SaltToken)
		if err != nil {
			return zero, maskMasterUnauthorized(err)
		}
		return out, nil
	}

	out, err := fn(status.SaltToken)
	if err == nil {
		return out, nil
	}
	if !errors.IsUnauthorized(err) {
		return zero, err
	}
	if !status.SaltToken.Matured() {
		return zero, errors.NewInternalError("master rejected a fresh token", err)
	}

	if err := c.RenewSaltToken(ctx, status); err != nil {
		return zero, err
	}
	out, err = fn(status.SaltToken)
	if err != nil {
		return zero, maskMasterUnauthorized(err)
	}
	return out, nil
}

// Do is Call for master operations without a result.
func Do(ctx context.Context, c *Coordinator, status *auth.AuthStatus, fn func(*salt.Token) error) error {
	_, err := Call(ctx, c, status, func(token *salt.Token) (struct{}, error) {
		return struct{}{}, fn(token)
	})
	return err
}

// maskMasterUnauthorized keeps a master-side 401 from masquerading as an
// operator-session 401 at the API boundary.
func maskMasterUnauthorized(err error) error {
	if errors.IsUnauthorized(err) {
		return errors.NewInternalError("master rejected token after renewal", err)
	}
	return err
}
