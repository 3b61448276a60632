package v1

import (
	"net/http"
	"strings"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/sessions"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// authRoutes carries the login, logout, master callback, and identity
// handlers.
type authRoutes struct {
	sessions           *sessions.Coordinator
	store              storage.Store
	authForwardEnabled bool
	authForwardHeader  string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"`
}

// login authenticates an operator and opens a session. In forward-auth
// deployments the identity comes from the trusted proxy header and the
// body is ignored.
func (a *authRoutes) login(w http.ResponseWriter, r *http.Request) error {
	if a.authForwardEnabled {
		username := strings.TrimSpace(r.Header.Get(a.authForwardHeader))
		if username == "" {
			return errors.NewUnauthorizedError("forwarded identity header missing", nil)
		}
		token, user, err := a.sessions.LoginForwarded(r.Context(), username)
		if err != nil {
			return err
		}
		return a.writeLogin(w, token, user.ID)
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Username == "" || req.Password == "" {
		return errors.NewInvalidRequestError("username and password are required", nil)
	}
	token, user, err := a.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return a.writeLogin(w, token, user.ID)
}

func (a *authRoutes) writeLogin(w http.ResponseWriter, token *models.SessionToken, userID string) error {
	return writeJSON(w, http.StatusOK, loginResponse{
		UserID: userID,
		Token:  token.ID,
		Expiry: token.IssuedAt.Add(a.sessions.Lifespan()).Unix(),
	})
}

// logout deletes the caller's session. Replaying a logout is harmless.
func (a *authRoutes) logout(w http.ResponseWriter, r *http.Request) error {
	status, err := callerStatus(r)
	if err != nil {
		return err
	}
	if err := a.sessions.Logout(r.Context(), status.SessionID); err != nil {
		return err
	}
	return writeJSON(w, http.StatusNoContent, nil)
}

// token is the master's external-auth callback. The master posts the
// operator's username and session token as form fields; the response body
// is the permission document the master should enforce.
func (a *authRoutes) token(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return errors.NewInvalidRequestError("invalid form body", err)
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		return errors.NewInvalidRequestError("username and password are required", nil)
	}

	perms, err := a.sessions.ValidateForSalt(r.Context(), username, password)
	if err != nil {
		if errors.IsUnauthorized(err) {
			logger.Warnf("Master callback rejected for %q", username)
		}
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(perms); err != nil {
		logger.Errorw("writing callback response", "error", err)
	}
	return nil
}

// myself returns the caller's own user record.
func (a *authRoutes) myself(w http.ResponseWriter, r *http.Request) error {
	status, err := callerStatus(r)
	if err != nil {
		return err
	}
	user, err := a.store.GetUser(r.Context(), status.UserID)
	if err != nil {
		return storeErr(err, "user")
	}
	return writeJSON(w, http.StatusOK, user)
}
