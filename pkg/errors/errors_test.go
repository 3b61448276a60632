package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrInvalidRequest,
				Message: "test message",
				Cause:   errors.New("underlying error"),
			},
			want: "invalid_request: test message: underlying error",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrStorage,
				Message: "test message",
				Cause:   nil,
			},
			want: "storage: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{
		Type:    ErrInternal,
		Message: "test message",
		Cause:   cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Error.Unwrap() = %v, want %v", got, cause)
	}

	errNoCause := &Error{
		Type:    ErrInternal,
		Message: "test message",
		Cause:   nil,
	}

	if got := errNoCause.Unwrap(); got != nil {
		t.Errorf("Error.Unwrap() = %v, want nil", got)
	}
}

func TestNewError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewError(ErrInvalidRequest, "test message", cause)

	if err.Type != ErrInvalidRequest {
		t.Errorf("NewError().Type = %v, want %v", err.Type, ErrInvalidRequest)
	}
	if err.Message != "test message" {
		t.Errorf("NewError().Message = %v, want %v", err.Message, "test message")
	}
	if err.Cause != cause {
		t.Errorf("NewError().Cause = %v, want %v", err.Cause, cause)
	}
}

func TestNewErrorConstructors(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name        string
		constructor func(string, error) *Error
		wantType    string
	}{
		{
			name:        "NewUnauthorizedError",
			constructor: NewUnauthorizedError,
			wantType:    ErrUnauthorized,
		},
		{
			name:        "NewForbiddenError",
			constructor: NewForbiddenError,
			wantType:    ErrForbidden,
		},
		{
			name:        "NewNotFoundError",
			constructor: NewNotFoundError,
			wantType:    ErrNotFound,
		},
		{
			name:        "NewInvalidRequestError",
			constructor: NewInvalidRequestError,
			wantType:    ErrInvalidRequest,
		},
		{
			name:        "NewStorageError",
			constructor: NewStorageError,
			wantType:    ErrStorage,
		},
		{
			name:        "NewUpstreamUnavailableError",
			constructor: NewUpstreamUnavailableError,
			wantType:    ErrUpstreamUnavailable,
		},
		{
			name:        "NewInternalError",
			constructor: NewInternalError,
			wantType:    ErrInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor("test message", cause)
			if err.Type != tt.wantType {
				t.Errorf("%s().Type = %v, want %v", tt.name, err.Type, tt.wantType)
			}
			if err.Message != "test message" {
				t.Errorf("%s().Message = %v, want %v", tt.name, err.Message, "test message")
			}
			if err.Cause != cause {
				t.Errorf("%s().Cause = %v, want %v", tt.name, err.Cause, cause)
			}
		})
	}
}

func TestErrorTypeCheckers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{
			name:    "IsUnauthorized with matching error",
			err:     NewUnauthorizedError("test", nil),
			checker: IsUnauthorized,
			want:    true,
		},
		{
			name:    "IsUnauthorized with non-matching error",
			err:     NewForbiddenError("test", nil),
			checker: IsUnauthorized,
			want:    false,
		},
		{
			name:    "IsUnauthorized with non-Error type",
			err:     errors.New("regular error"),
			checker: IsUnauthorized,
			want:    false,
		},
		{
			name:    "IsForbidden with matching error",
			err:     NewForbiddenError("test", nil),
			checker: IsForbidden,
			want:    true,
		},
		{
			name:    "IsNotFound with matching error",
			err:     NewNotFoundError("test", nil),
			checker: IsNotFound,
			want:    true,
		},
		{
			name:    "IsInvalidRequest with matching error",
			err:     NewInvalidRequestError("test", nil),
			checker: IsInvalidRequest,
			want:    true,
		},
		{
			name:    "IsStorage with matching error",
			err:     NewStorageError("test", nil),
			checker: IsStorage,
			want:    true,
		},
		{
			name:    "IsUpstreamUnavailable with matching error",
			err:     NewUpstreamUnavailableError("test", nil),
			checker: IsUpstreamUnavailable,
			want:    true,
		},
		{
			name:    "IsInternal with matching error",
			err:     NewInternalError("test", nil),
			checker: IsInternal,
			want:    true,
		},
		{
			name:    "IsInternal with nil error",
			err:     nil,
			checker: IsInternal,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.checker(tt.err)
			if got != tt.want {
				t.Errorf("%s() = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", NewUnauthorizedError("test", nil), http.StatusUnauthorized},
		{"forbidden", NewForbiddenError("test", nil), http.StatusForbidden},
		{"not found", NewNotFoundError("test", nil), http.StatusNotFound},
		{"invalid request", NewInvalidRequestError("test", nil), http.StatusBadRequest},
		{"storage", NewStorageError("test", nil), http.StatusInternalServerError},
		{"upstream unavailable", NewUpstreamUnavailableError("test", nil), http.StatusInternalServerError},
		{"internal", NewInternalError("test", nil), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor() = %v, want %v", got, tt.want)
			}
		})
	}
}
