package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/drivegate/internal/auth"
	"github.com/jun/drivegate/internal/model"
)

// AuthHandler serves sign-in, logout and API key management.
type AuthHandler struct {
	auth         *auth.Service
	logger       *slog.Logger
	sessionTTL   time.Duration
	secureCookie bool
}

// NewAuthHandler creates an AuthHandler. secureCookie marks the session
// cookie Secure with SameSite=None, as needed behind CloudFront.
func NewAuthHandler(s *auth.Service, logger *slog.Logger, sessionTTL time.Duration, secureCookie bool) *AuthHandler {
	if sessionTTL <= 0 {
		sessionTTL = auth.DefaultSessionTTL
	}
	return &AuthHandler{auth: s, logger: logger, sessionTTL: sessionTTL, secureCookie: secureCookie}
}

// AuthURL returns the Google consent URL as JSON.
func (h *AuthHandler) AuthURL(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	url, err := h.auth.AuthURL()
	if err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}
	return jsonResponse(http.StatusOK, map[string]string{"authUrl": url}), nil
}

// Login redirects the browser to the Google consent screen.
func (h *AuthHandler) Login(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	url, err := h.auth.AuthURL()
	if err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": url,
		},
	}, nil
}

type callbackResponse struct {
	User        *model.User `json:"user"`
	AccessToken string      `json:"accessToken"`
}

// Callback completes sign-in. The session token is returned in the body
// and set as an HttpOnly cookie.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	res, err := h.auth.Callback(ctx, req.QueryStringParameters["code"], req.QueryStringParameters["state"])
	if err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}

	resp := jsonResponse(http.StatusOK, callbackResponse{User: res.User, AccessToken: res.SessionToken})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {sessionCookie(res.SessionToken, int(h.sessionTTL.Seconds()), h.secureCookie)},
	}
	return resp, nil
}

// Logout ends the caller's session and clears the cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := h.auth.Logout(ctx, SessionToken(req)); err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}
	resp := jsonResponse(http.StatusOK, map[string]bool{"success": true})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {sessionCookie("", 0, h.secureCookie)},
	}
	return resp, nil
}

// CreateAPIKey issues an API key for the signed-in user.
func (h *AuthHandler) CreateAPIKey(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	p, ok := h.auth.ValidateSession(ctx, SessionToken(req))
	if !ok {
		return unauthorized(), nil
	}

	var body struct {
		KeyName string `json:"keyName"`
	}
	if err := decodeBody(req, &body); err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}

	created, err := h.auth.CreateAPIKey(ctx, p.UserID, body.KeyName)
	if err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}
	return jsonResponse(http.StatusCreated, created), nil
}

// ListAPIKeys lists the signed-in user's API keys without secrets.
func (h *AuthHandler) ListAPIKeys(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	p, ok := h.auth.ValidateSession(ctx, SessionToken(req))
	if !ok {
		return unauthorized(), nil
	}

	keys, err := h.auth.ListAPIKeys(ctx, p.UserID)
	if err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}
	if keys == nil {
		keys = []model.APIKey{}
	}
	return jsonResponse(http.StatusOK, map[string]any{"apiKeys": keys}), nil
}
