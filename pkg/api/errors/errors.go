// Package errors provides HTTP error handling utilities for the API.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error. Handlers
// return errors instead of writing error responses themselves, so status
// mapping happens in one place.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError and converts a returned error into
// an HTTP response. The status comes from the error kind. Server-side
// failures are logged in full and answered with a generic message; client
// errors carry their message through.
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := errors.StatusFor(err)
		if code >= http.StatusInternalServerError {
			logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			WriteError(w, code, http.StatusText(code))
			return
		}
		WriteError(w, code, err.Error())
	}
}

// WriteError renders a JSON error body with the given status.
func WriteError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
