// Package sessions orchestrates the dual-token lifecycle: operator login,
// master login chained on the session id, on-demand master token renewal,
// and the validation callback the master uses to check our sessions.
package sessions

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	goerrors "errors"
	"strings"
	"time"

	"github.com/resalt-dev/resalt/pkg/auth"
	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/salt"
	"github.com/resalt-dev/resalt/pkg/storage"
	"github.com/resalt-dev/resalt/pkg/telemetry"
)

// ServiceUsername is the reserved account the master and the ingestion
// loop use for service-to-service calls. It is invalid as an operator
// username.
const ServiceUsername = "$superadmin/svc/resalt$"

// servicePerms is the wildcard permission set granted to the service
// account: everything, including runner and wheel access.
const servicePerms = `[".*", "@runner", "@wheel"]`

// PermsRefresher recomputes and persists a user's cached permission blob
// from group memberships, returning the new blob.
type PermsRefresher interface {
	RefreshUserPerms(ctx context.Context, userID string) (string, error)
}

// DirectoryAuthenticator verifies directory-managed credentials and keeps
// the local mirror of the logging-in user fresh. A nil user with nil
// error means the directory does not know the username.
type DirectoryAuthenticator interface {
	Login(ctx context.Context, username, password string) (*models.User, error)
}

// Options carries the coordinator's configuration.
type Options struct {
	// Lifespan is how long an issued session stays valid.
	Lifespan time.Duration

	// ServiceToken authenticates the reserved service account on the
	// master callback.
	ServiceToken string
}

// Coordinator implements the session and master-token lifecycle.
type Coordinator struct {
	store  storage.Store
	master salt.Client
	perms  PermsRefresher
	dir    DirectoryAuthenticator
	opts   Options
	now    func() time.Time
}

var _ auth.Validator = (*Coordinator)(nil)

// New builds a Coordinator. dir may be nil when directory auth is
// disabled.
func New(store storage.Store, master salt.Client, perms PermsRefresher, dir DirectoryAuthenticator, opts Options) *Coordinator {
	return &Coordinator{
		store:  store,
		master: master,
		perms:  perms,
		dir:    dir,
		opts:   opts,
		now:    time.Now,
	}
}

// Lifespan returns the configured session lifespan.
func (c *Coordinator) Lifespan() time.Duration {
	return c.opts.Lifespan
}

// Login authenticates an operator and issues a session. Local users are
// verified against their stored hash; directory-managed users are
// delegated to the directory. The master login is attempted with the new
// session id as the shared credential, but an unreachable master does not
// fail the login: the session is issued without a cached master token.
func (c *Coordinator) Login(ctx context.Context, username, password string) (*models.SessionToken, *models.User, error) {
	username = normalizeUsername(username)
	if username == "" || username == ServiceUsername {
		return nil, nil, errors.NewUnauthorizedError("invalid credentials", nil)
	}

	user, err := c.lookupUser(ctx, username)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case user != nil && user.DirectoryRef == nil:
		if user.Password == nil || !auth.VerifyPassword(*user.Password, password) {
			return nil, nil, errors.NewUnauthorizedError("invalid credentials", nil)
		}
	case user != nil: // directory-managed
		if c.dir == nil {
			return nil, nil, errors.NewUnauthorizedError("invalid credentials", nil)
		}
		if user, err = c.directoryLogin(ctx, username, password); err != nil {
			return nil, nil, err
		}
	default: // unknown locally; the directory may still know them
		if c.dir == nil {
			return nil, nil, errors.NewUnauthorizedError("invalid credentials", nil)
		}
		if user, err = c.directoryLogin(ctx, username, password); err != nil {
			return nil, nil, err
		}
	}

	return c.finishLogin(ctx, user)
}

// LoginForwarded issues a session for a username asserted by a trusted
// reverse proxy, auto-provisioning the user on first sight.
func (c *Coordinator) LoginForwarded(ctx context.Context, username string) (*models.SessionToken, *models.User, error) {
	username = normalizeUsername(username)
	if username == "" || username == ServiceUsername {
		return nil, nil, errors.NewUnauthorizedError("invalid forwarded identity", nil)
	}

	user, err := c.lookupUser(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		user = &models.User{
			ID:       models.NewUserID(),
			Username: username,
			Perms:    "[]",
		}
		if err := c.store.CreateUser(ctx, *user); err != nil {
			return nil, nil, errors.NewStorageError("provisioning forwarded user", err)
		}
		logger.Infof("Provisioned forwarded user %s", username)
	}

	return c.finishLogin(ctx, user)
}

func (c *Coordinator) lookupUser(ctx context.Context, username string) (*models.User, error) {
	user, err := c.store.GetUserByUsername(ctx, username)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.NewStorageError("looking up user", err)
	}
	return user, nil
}

func (c *Coordinator) directoryLogin(ctx context.Context, username, password string) (*models.User, error) {
	user, err := c.dir.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.NewUnauthorizedError("invalid credentials", nil)
	}
	return user, nil
}

// finishLogin runs the shared post-authentication steps: permission
// refresh, last-login stamp, session creation, and master login.
func (c *Coordinator) finishLogin(ctx context.Context, user *models.User) (*models.SessionToken, *models.User, error) {
	perms, err := c.perms.RefreshUserPerms(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	user.Perms = perms

	now := models.NewTime(c.now())
	user.LastLogin = &now
	if err := c.store.UpdateUser(ctx, *user); err != nil {
		return nil, nil, errors.NewStorageError("recording login", err)
	}

	id, err := auth.GenerateSessionID()
	if err != nil {
		return nil, nil, errors.NewInternalError("generating session id", err)
	}
	session := &models.SessionToken{ID: id, UserID: user.ID, IssuedAt: now}
	if err := c.store.CreateSession(ctx, *session); err != nil {
		return nil, nil, errors.NewStorageError("creating session", err)
	}

	// The master calls back into this service to validate the session id
	// we hand it as the password. An unreachable master is tolerated; the
	// token is attached on the first renewal that succeeds.
	token, err := c.master.Login(ctx, user.Username, session.ID)
	if err != nil {
		logger.Errorw("master login failed; session issued without master token",
			"user", user.Username, "error", err)
		return session, user, nil
	}
	blob, err := token.MarshalBlob()
	if err != nil {
		return nil, nil, errors.NewInternalError("serializing master token", err)
	}
	if err := c.store.SetSessionSaltToken(ctx, session.ID, &blob); err != nil {
		return nil, nil, errors.NewStorageError("attaching master token", err)
	}
	session.SaltTokenBlob = &blob

	logger.Debugw("session issued", "user", user.Username, "session", session.ID[:8])
	return session, user, nil
}

// Validate implements auth.Validator. Short ids are rejected before any
// storage I/O; expired sessions are dropped on sight.
func (c *Coordinator) Validate(ctx context.Context, tokenID string) (*auth.AuthStatus, error) {
	if len(tokenID) < models.MinSessionIDLength {
		return nil, errors.NewUnauthorizedError("malformed session token", nil)
	}

	session, err := c.store.GetSession(ctx, tokenID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewUnauthorizedError("unknown session", nil)
		}
		return nil, errors.NewStorageError("loading session", err)
	}
	if session.Expired(c.opts.Lifespan, c.now()) {
		if err := c.store.DeleteSession(ctx, session.ID); err != nil {
			logger.Warnf("Failed to delete expired session: %v", err)
		}
		return nil, errors.NewUnauthorizedError("session expired", nil)
	}

	user, err := c.store.GetUser(ctx, session.UserID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewUnauthorizedError("session user no longer exists", nil)
		}
		return nil, errors.NewStorageError("loading session user", err)
	}

	var token *salt.Token
	if session.SaltTokenBlob != nil {
		// A corrupt stored token is a bug worth surfacing, not a silent
		// re-login.
		if token, err = salt.UnmarshalBlob(*session.SaltTokenBlob); err != nil {
			return nil, errors.NewInternalError("deserializing stored master token", err)
		}
	}

	return &auth.AuthStatus{
		UserID:    user.ID,
		Perms:     user.Perms,
		SessionID: session.ID,
		SaltToken: token,
	}, nil
}

// RenewSaltToken logs into the master again with the existing session id
// and replaces the cached token. Concurrent renewals race benignly: each
// attach is a blind overwrite and the last writer wins.
func (c *Coordinator) RenewSaltToken(ctx context.Context, status *auth.AuthStatus) error {
	user, err := c.store.GetUser(ctx, status.UserID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return errors.NewUnauthorizedError("session user no longer exists", nil)
		}
		return errors.NewStorageError("loading user for renewal", err)
	}

	token, err := c.master.Login(ctx, user.Username, status.SessionID)
	if err != nil {
		if errors.IsUnauthorized(err) {
			// The master refused our own callback-backed credentials;
			// that is a deployment fault, not a caller fault.
			return errors.NewInternalError("master rejected session during renewal", err)
		}
		return err
	}

	blob, err := token.MarshalBlob()
	if err != nil {
		return errors.NewInternalError("serializing master token", err)
	}
	if err := c.store.SetSessionSaltToken(ctx, status.SessionID, &blob); err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return errors.NewUnauthorizedError("session no longer exists", nil)
		}
		return errors.NewStorageError("attaching master token", err)
	}

	status.SaltToken = token
	telemetry.TokenRenewals.Inc()
	return nil
}

// Logout deletes the session. Logging out an unknown or already removed
// session succeeds.
func (c *Coordinator) Logout(ctx context.Context, sessionID string) error {
	if err := c.store.DeleteSession(ctx, sessionID); err != nil {
		return errors.NewStorageError("deleting session", err)
	}
	return nil
}

// ValidateForSalt is the master's external-auth callback: it presents a
// username and the session id it was given as a password, and receives
// the permission document to enforce. The reserved service account is
// checked against the configured service token without touching storage.
func (c *Coordinator) ValidateForSalt(ctx context.Context, username, password string) (json.RawMessage, error) {
	if username == ServiceUsername {
		if c.opts.ServiceToken == "" ||
			subtle.ConstantTimeCompare([]byte(password), []byte(c.opts.ServiceToken)) != 1 {
			return nil, errors.NewUnauthorizedError("invalid service token", nil)
		}
		return json.RawMessage(servicePerms), nil
	}

	status, err := c.Validate(ctx, password)
	if err != nil {
		return nil, err
	}
	user, err := c.store.GetUser(ctx, status.UserID)
	if err != nil {
		return nil, errors.NewStorageError("loading user for master callback", err)
	}
	if user.Username != normalizeUsername(username) {
		return nil, errors.NewUnauthorizedError("session does not belong to user", nil)
	}
	return models.PermsArray(user.Perms), nil
}

// SweepExpired deletes sessions older than the lifespan and reports how
// many were removed.
func (c *Coordinator) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.opts.Lifespan)
	n, err := c.store.DeleteExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, errors.NewStorageError("sweeping expired sessions", err)
	}
	return n, nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
