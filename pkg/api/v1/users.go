package v1

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/resalt-dev/resalt/pkg/auth"
	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// userRoutes manages operator accounts.
type userRoutes struct {
	store storage.Store
}

type createUserRequest struct {
	Username string  `json:"username"`
	Password *string `json:"password"`
	Email    *string `json:"email"`
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

func (u *userRoutes) list(w http.ResponseWriter, r *http.Request) error {
	limit, offset, err := parsePaging(r, 0)
	if err != nil {
		return err
	}
	users, err := u.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		return storeErr(err, "users")
	}
	return writeJSON(w, http.StatusOK, users)
}

func (u *userRoutes) create(w http.ResponseWriter, r *http.Request) error {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		return errors.NewInvalidRequestError("username is required", nil)
	}

	user := models.User{
		ID:       models.NewUserID(),
		Username: username,
		Perms:    "[]",
		Email:    req.Email,
	}
	if req.Password != nil && *req.Password != "" {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return errors.NewInternalError("hashing password", err)
		}
		user.Password = &hash
	}

	if err := u.store.CreateUser(r.Context(), user); err != nil {
		return storeErr(err, "user")
	}
	return writeJSON(w, http.StatusCreated, user)
}

func (u *userRoutes) get(w http.ResponseWriter, r *http.Request) error {
	user, err := u.store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return storeErr(err, "user")
	}
	return writeJSON(w, http.StatusOK, user)
}

func (u *userRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	status, err := callerStatus(r)
	if err != nil {
		return err
	}
	id := chi.URLParam(r, "id")
	if id == status.UserID {
		return errors.NewInvalidRequestError("cannot delete your own account", nil)
	}
	if err := u.store.DeleteUser(r.Context(), id); err != nil {
		return storeErr(err, "user")
	}
	return writeJSON(w, http.StatusNoContent, nil)
}

// setPassword replaces a user's password hash. Operators can change their
// own password; changing someone else's requires the password-reset or
// user-administration permission. Directory-managed accounts have no local
// password to change.
func (u *userRoutes) setPassword(w http.ResponseWriter, r *http.Request) error {
	status, err := callerStatus(r)
	if err != nil {
		return err
	}
	id := chi.URLParam(r, "id")
	if id != status.UserID &&
		!auth.HasPermission(status.Perms, auth.PermUserPassword) &&
		!auth.HasPermission(status.Perms, auth.PermAdminUser) {
		return errors.NewForbiddenError("permission denied", nil)
	}

	var req setPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Password == "" {
		return errors.NewInvalidRequestError("password is required", nil)
	}

	user, err := u.store.GetUser(r.Context(), id)
	if err != nil {
		return storeErr(err, "user")
	}
	if user.DirectoryRef != nil {
		return errors.NewInvalidRequestError("user is directory-managed", nil)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return errors.NewInternalError("hashing password", err)
	}
	user.Password = &hash
	if err := u.store.UpdateUser(r.Context(), *user); err != nil {
		return storeErr(err, "user")
	}
	return writeJSON(w, http.StatusNoContent, nil)
}
