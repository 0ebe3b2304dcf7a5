// Package auth implements Google sign-in, session and API key
// authentication, and access token refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/jun/drivegate/internal/apperr"
)

const (
	stateIssuer = "drivegate"
	stateTTL    = 10 * time.Minute
)

type stateClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// AuthURL returns the Google consent URL. It requests offline access with
// forced consent so that a refresh token is issued.
func (s *Service) AuthURL() (string, error) {
	if s.oauth.ClientID == "" || s.oauth.RedirectURL == "" {
		return "", apperr.New(apperr.ErrConfigurationMissing, "google client id and redirect url must be configured")
	}
	state, err := s.newState()
	if err != nil {
		return "", err
	}
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

func (s *Service) newState() (string, error) {
	now := s.now()
	claims := stateClaims{
		Nonce: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.stateSecret)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return signed, nil
}

func (s *Service) verifyState(state string) error {
	_, err := jwt.ParseWithClaims(state, &stateClaims{}, func(*jwt.Token) (any, error) {
		return s.stateSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return apperr.Wrap(apperr.ErrUnauthorized, err, "invalid oauth state")
	}
	return nil
}

// exchange trades an authorization code for tokens.
func (s *Service) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, providerFailure(apperr.ErrUnauthorized, err, "authorization code exchange failed")
	}
	return tok, nil
}

// profile fetches the Google account behind tok.
func (s *Service) profile(ctx context.Context, tok *oauth2.Token) (*googleoauth.Userinfo, error) {
	opts := []option.ClientOption{option.WithHTTPClient(s.oauth.Client(ctx, tok))}
	if s.userinfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(s.userinfoEndpoint))
	}
	svc, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrFetchFailed, err, "fetch google profile")
	}
	if info.Id == "" {
		return nil, apperr.Wrap(apperr.ErrFetchFailed, errors.New("empty id"), "fetch google profile")
	}
	return info, nil
}
