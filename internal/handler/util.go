package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/drivegate/internal/apperr"
)

const (
	// SessionCookie carries the session token for browser callers.
	SessionCookie = "session_token"
	// APIKeyHeader carries an API key for scripted callers.
	APIKeyHeader = "X-API-Key"
)

// Header returns the value of a request header, ignoring case.
func Header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, v := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(req events.APIGatewayProxyRequest) string {
	authHeader := Header(req, "Authorization")
	if len(authHeader) > len("Bearer ") && strings.EqualFold(authHeader[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return ""
}

// Cookie returns the named cookie from the Cookie header.
func Cookie(req events.APIGatewayProxyRequest, name string) string {
	cookies := Header(req, "Cookie")
	if cookies == "" {
		return ""
	}
	for _, part := range strings.Split(cookies, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k == name {
			return v
		}
	}
	return ""
}

// SessionToken reads the session token from the Authorization header,
// falling back to the session cookie.
func SessionToken(req events.APIGatewayProxyRequest) string {
	if tok := BearerToken(req); tok != "" {
		return tok
	}
	return Cookie(req, SessionCookie)
}

// APIKey reads an API key from the X-API-Key header, falling back to the
// Authorization header.
func APIKey(req events.APIGatewayProxyRequest) string {
	if key := Header(req, APIKeyHeader); key != "" {
		return key
	}
	return BearerToken(req)
}

func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return apperr.Wrap(apperr.ErrInvalidInput, err, "invalid request body")
		}
		body = decoded
	}
	if len(body) == 0 {
		return apperr.New(apperr.ErrInvalidInput, "request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.ErrInvalidInput, err, "invalid request body")
	}
	return nil
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"INTERNAL","message":"internal server error"}}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse renders err as the JSON error envelope. Server-side
// failures are logged; provider bodies never reach the caller.
func ErrorResponse(ctx context.Context, logger *slog.Logger, err error) events.APIGatewayProxyResponse {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed",
			slog.Int("status", status),
			slog.String("code", apperr.Code(err)),
			slog.String("error", err.Error()),
		)
	}
	return jsonResponse(status, errorBody{Error: errorDetail{Code: apperr.Code(err), Message: apperr.Message(err)}})
}

// NotFound renders the envelope for a request no route matched.
func NotFound(method, path string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusNotFound, errorBody{Error: errorDetail{
		Code:    apperr.Code(apperr.ErrNotFound),
		Message: fmt.Sprintf("no route for %s %s", method, path),
	}})
}

func unauthorized() events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusUnauthorized, errorBody{Error: errorDetail{
		Code:    apperr.Code(apperr.ErrUnauthorized),
		Message: "authentication required",
	}})
}

func sessionCookie(token string, maxAge int, secure bool) string {
	sameSite := "Lax"
	attrs := ""
	if secure {
		sameSite = "None"
		attrs = "; Secure"
	}
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s%s", SessionCookie, token, maxAge, sameSite, attrs)
}
