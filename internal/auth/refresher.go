package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/jun/drivegate/internal/apperr"
	"github.com/jun/drivegate/internal/crypto"
	"github.com/jun/drivegate/internal/metrics"
	"github.com/jun/drivegate/internal/model"
	"github.com/jun/drivegate/internal/store"
)

// TokenRefresher hands out Google access tokens, refreshing them when they
// are within the buffer of expiring.
type TokenRefresher struct {
	users   store.UserStore
	oauth   *oauth2.Config
	enc     crypto.Encryptor
	buffer  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewTokenRefresher creates a TokenRefresher.
func NewTokenRefresher(users store.UserStore, oauthConfig *oauth2.Config, enc crypto.Encryptor, buffer time.Duration, logger *slog.Logger, m *metrics.Metrics) *TokenRefresher {
	return &TokenRefresher{
		users:   users,
		oauth:   oauthConfig,
		enc:     enc,
		buffer:  buffer,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// AccessToken returns a non-expired access token for userID.
func (r *TokenRefresher) AccessToken(ctx context.Context, userID string) (string, error) {
	u, err := r.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", apperr.New(apperr.ErrNotFound, "user %s not found", userID)
	}
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}

	now := r.now()
	if !NeedsRefresh(u.TokenExpiry, now, r.buffer) {
		return u.AccessToken, nil
	}
	return r.refresh(ctx, u, now)
}

func (r *TokenRefresher) refresh(ctx context.Context, u *model.User, now time.Time) (string, error) {
	if u.EncryptedRefreshToken == "" {
		r.metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return "", apperr.New(apperr.ErrTokenRefreshFailed, "no refresh token on file, sign in again")
	}
	refreshToken, err := r.enc.Decrypt(ctx, u.EncryptedRefreshToken)
	if err != nil {
		r.metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return "", apperr.Wrap(apperr.ErrTokenRefreshFailed, err, "decrypt refresh token")
	}

	tok, err := r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		r.metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		r.logger.WarnContext(ctx, "token refresh rejected",
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
		return "", providerFailure(apperr.ErrTokenRefreshFailed, err, "google rejected the refresh token")
	}

	upd := store.TokenUpdate{
		AccessToken: tok.AccessToken,
		Expiry:      expiresAt(tok, now),
		UpdatedAt:   now,
	}
	rotated := tok.RefreshToken != "" && tok.RefreshToken != refreshToken
	if rotated {
		enc, err := r.enc.Encrypt(ctx, tok.RefreshToken)
		if err != nil {
			r.metrics.TokenRefreshes.WithLabelValues("failure").Inc()
			return "", fmt.Errorf("encrypt rotated refresh token: %w", err)
		}
		upd.EncryptedRefreshToken = enc
	}
	if err := r.users.UpdateUserTokens(ctx, u.ID, upd); err != nil {
		r.metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	r.metrics.TokenRefreshes.WithLabelValues("success").Inc()
	r.logger.InfoContext(ctx, "access token refreshed",
		slog.String("user_id", u.ID),
		slog.Bool("rotated", rotated),
		slog.Time("expires_at", upd.Expiry),
	)
	return tok.AccessToken, nil
}
