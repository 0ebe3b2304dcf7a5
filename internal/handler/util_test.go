package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/drivegate/internal/apperr"
	"github.com/jun/drivegate/internal/logger"
)

func TestSessionToken(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer abc"}, "abc"},
		{"lowercase header and scheme", map[string]string{"authorization": "bearer abc"}, "abc"},
		{"cookie", map[string]string{"Cookie": "theme=dark; session_token=xyz; other=1"}, "xyz"},
		{"bearer wins over cookie", map[string]string{"Authorization": "Bearer abc", "Cookie": "session_token=xyz"}, "abc"},
		{"basic auth ignored", map[string]string{"Authorization": "Basic Zm9v"}, ""},
		{"similar cookie name", map[string]string{"Cookie": "old_session_token=nope"}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SessionToken(events.APIGatewayProxyRequest{Headers: tt.headers})
			if got != tt.want {
				t.Errorf("SessionToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIKey(t *testing.T) {
	req := events.APIGatewayProxyRequest{Headers: map[string]string{"x-api-key": "dgk_1", "Authorization": "Bearer dgk_2"}}
	if got := APIKey(req); got != "dgk_1" {
		t.Errorf("APIKey() = %q, want dgk_1", got)
	}
	req = events.APIGatewayProxyRequest{Headers: map[string]string{"Authorization": "Bearer dgk_2"}}
	if got := APIKey(req); got != "dgk_2" {
		t.Errorf("APIKey() = %q, want dgk_2", got)
	}
	req = events.APIGatewayProxyRequest{MultiValueHeaders: map[string][]string{"X-Api-Key": {"dgk_3"}}}
	if got := APIKey(req); got != "dgk_3" {
		t.Errorf("APIKey() = %q, want dgk_3", got)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{apperr.New(apperr.ErrFileNotFound, "file not found"), http.StatusNotFound, "FILE_NOT_FOUND"},
		{apperr.Provider(apperr.ErrDriveAPI, 503, "secret provider body", "list files"), http.StatusBadGateway, "DRIVE_API_ERROR"},
		{apperr.New(apperr.ErrPermissionDenied, "nope"), http.StatusForbidden, "PERMISSION_DENIED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		resp := ErrorResponse(context.Background(), logger.Discard(), tt.err)
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("%v: status = %d, want %d", tt.err, resp.StatusCode, tt.wantStatus)
		}
		var body errorBody
		if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body.Error.Code != tt.wantCode {
			t.Errorf("%v: code = %q, want %q", tt.err, body.Error.Code, tt.wantCode)
		}
		if body.Error.Message == "" || body.Error.Message == "secret provider body" {
			t.Errorf("%v: unexpected message %q", tt.err, body.Error.Message)
		}
	}
}

func TestDecodeBody(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	if err := decodeBody(events.APIGatewayProxyRequest{Body: `{"name":"a"}`}, &v); err != nil || v.Name != "a" {
		t.Fatalf("decodeBody plain = %v, %q", err, v.Name)
	}
	if err := decodeBody(events.APIGatewayProxyRequest{Body: "eyJuYW1lIjoiYiJ9", IsBase64Encoded: true}, &v); err != nil || v.Name != "b" {
		t.Fatalf("decodeBody base64 = %v, %q", err, v.Name)
	}
	for _, body := range []string{"", "{"} {
		if err := decodeBody(events.APIGatewayProxyRequest{Body: body}, &v); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("decodeBody(%q) = %v, want InvalidInput", body, err)
		}
	}
}

func TestSessionCookie(t *testing.T) {
	if got := sessionCookie("t", 60, true); got != "session_token=t; HttpOnly; Path=/; Max-Age=60; SameSite=None; Secure" {
		t.Errorf("secure cookie = %q", got)
	}
	if got := sessionCookie("", 0, false); got != "session_token=; HttpOnly; Path=/; Max-Age=0; SameSite=Lax" {
		t.Errorf("dev logout cookie = %q", got)
	}
}
