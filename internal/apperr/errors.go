// Package apperr defines the error kinds surfaced by drivegate operations.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrFileNotFound         = errors.New("file not found")
	ErrTokenRefreshFailed   = errors.New("token refresh failed")
	ErrDriveAPI             = errors.New("drive api error")
	ErrFetchFailed          = errors.New("fetch failed")
	ErrUploadFailed         = errors.New("upload failed")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrNotWorkspaceDocument = errors.New("not a workspace document")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
)

// Error is a kinded error with optional provider diagnostics.
type Error struct {
	Kind       error
	Message    string
	StatusCode int    // provider HTTP status, 0 when not applicable
	Body       string // provider response body, for diagnostics only
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind caused by err.
func Wrap(kind error, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Provider returns an error of the given kind carrying a provider response.
func Provider(kind error, status int, body string, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), StatusCode: status, Body: body}
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrFileNotFound):
		return "FILE_NOT_FOUND"
	case errors.Is(err, ErrTokenRefreshFailed):
		return "TOKEN_REFRESH_FAILED"
	case errors.Is(err, ErrDriveAPI):
		return "DRIVE_API_ERROR"
	case errors.Is(err, ErrFetchFailed):
		return "FETCH_FAILED"
	case errors.Is(err, ErrUploadFailed):
		return "UPLOAD_FAILED"
	case errors.Is(err, ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, ErrNotWorkspaceDocument):
		return "NOT_WORKSPACE_DOCUMENT"
	case errors.Is(err, ErrConfigurationMissing):
		return "CONFIGURATION_MISSING"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps err to the status returned to API callers.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTokenRefreshFailed), errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotWorkspaceDocument), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDriveAPI), errors.Is(err, ErrFetchFailed), errors.Is(err, ErrUploadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing message for err without provider bodies.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.Error()
	}
	return "internal server error"
}
