// Package v1 implements the operator-facing REST API.
package v1

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/resalt-dev/resalt/pkg/auth"
	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/storage"
)

// writeJSON renders v with the given status. Encoding failures after the
// status line are logged; the response is already committed.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return nil
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("encoding response", "error", err)
	}
	return nil
}

// decodeJSON parses the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewInvalidRequestError("invalid request body", err)
	}
	return nil
}

// callerStatus returns the authenticated caller attached by the auth
// middleware.
func callerStatus(r *http.Request) (*auth.AuthStatus, error) {
	status, ok := auth.AuthStatusFromContext(r.Context())
	if !ok {
		return nil, errors.NewUnauthorizedError("missing credentials", nil)
	}
	return status, nil
}

// storeErr maps storage sentinels onto the API error taxonomy. what names
// the entity for the client-facing message.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case goerrors.Is(err, storage.ErrNotFound):
		return errors.NewNotFoundError(fmt.Sprintf("%s not found", what), err)
	case goerrors.Is(err, storage.ErrAlreadyExists):
		return errors.NewInvalidRequestError(fmt.Sprintf("%s already exists", what), err)
	default:
		return errors.NewStorageError(fmt.Sprintf("loading %s", what), err)
	}
}

// parsePaging reads limit and offset query parameters. Absent values fall
// back to the given default limit and offset zero; a non-positive limit
// disables pagination.
func parsePaging(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.NewInvalidRequestError(fmt.Sprintf("invalid limit %q", raw), err)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.NewInvalidRequestError(fmt.Sprintf("invalid offset %q", raw), err)
		}
	}
	return limit, offset, nil
}
