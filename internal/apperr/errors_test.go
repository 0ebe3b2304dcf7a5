package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrFetchFailed, cause, "get metadata %s", "f1")

	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrDriveAPI)
	assert.Equal(t, "fetch failed: get metadata f1: boom", err.Error())
}

func TestError_WrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("list: %w", Provider(ErrDriveAPI, 500, "oops", "list files"))

	assert.ErrorIs(t, err, ErrDriveAPI)
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))
	assert.Equal(t, "DRIVE_API_ERROR", Code(err))
	assert.Equal(t, "list files", Message(err))
	assert.Contains(t, err.Error(), "status 500")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrFileNotFound, http.StatusNotFound},
		{ErrTokenRefreshFailed, http.StatusUnauthorized},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrPermissionDenied, http.StatusForbidden},
		{ErrNotWorkspaceDocument, http.StatusBadRequest},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrUploadFailed, http.StatusBadGateway},
		{ErrConfigurationMissing, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(New(tt.kind, "x")))
		})
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
	assert.Equal(t, "internal server error", Message(errors.New("plain")))
}
