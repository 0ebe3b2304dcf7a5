package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/jun/drivegate/internal/apperr"
	"github.com/jun/drivegate/internal/crypto"
	"github.com/jun/drivegate/internal/model"
	"github.com/jun/drivegate/internal/store"
	"github.com/jun/drivegate/internal/validate"
)

const (
	// APIKeyPrefix starts every API key secret.
	APIKeyPrefix = "dgk_"

	apiKeySecretBytes  = 32
	apiKeyDisplayChars = len(APIKeyPrefix) + 8
	sessionTokenBytes  = 32

	DefaultSessionTTL = 24 * time.Hour
)

// userIDSpace namespaces user ids derived from Google account ids.
var userIDSpace = uuid.MustParse("6f1c2a4e-8d3b-5e7f-9a10-b2c3d4e5f607")

// UserIDFor returns the drivegate user id for a Google account id. The id is
// stable so concurrent first sign-ins converge on one record.
func UserIDFor(googleID string) string {
	return uuid.NewSHA1(userIDSpace, []byte("google:"+googleID)).String()
}

// Options configures a Service.
type Options struct {
	OAuth            *oauth2.Config
	StateSecret      []byte
	UserinfoEndpoint string
	SessionTTL       time.Duration
	Encryptor        crypto.Encryptor
	Logger           *slog.Logger
}

// Service runs the sign-in flow and authenticates callers.
type Service struct {
	store            store.Store
	oauth            *oauth2.Config
	stateSecret      []byte
	userinfoEndpoint string
	sessionTTL       time.Duration
	enc              crypto.Encryptor
	logger           *slog.Logger
	now              func() time.Time
}

// NewService creates a Service backed by st.
func NewService(st store.Store, opts Options) *Service {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		store:            st,
		oauth:            opts.OAuth,
		stateSecret:      opts.StateSecret,
		userinfoEndpoint: opts.UserinfoEndpoint,
		sessionTTL:       ttl,
		enc:              opts.Encryptor,
		logger:           opts.Logger,
		now:              time.Now,
	}
}

// CallbackResult is a completed sign-in.
type CallbackResult struct {
	User         *model.User
	SessionToken string
	ExpiresAt    time.Time
}

// Callback completes the OAuth flow: it exchanges code, upserts the user by
// Google id and opens a session. A non-empty state must be one issued by
// AuthURL.
func (s *Service) Callback(ctx context.Context, code, state string) (*CallbackResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "authorization code is required")
	}
	if state != "" {
		if err := s.verifyState(state); err != nil {
			return nil, err
		}
	}

	tok, err := s.exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	info, err := s.profile(ctx, tok)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user, err := s.findOrCreateUser(ctx, info.Id, now)
	if err != nil {
		return nil, err
	}

	user.Email = info.Email
	user.Name = info.Name
	user.Picture = info.Picture
	user.AccessToken = tok.AccessToken
	user.TokenExpiry = expiresAt(tok, now)
	user.UpdatedAt = now
	if tok.RefreshToken != "" {
		enc, err := s.enc.Encrypt(ctx, tok.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypt refresh token: %w", err)
		}
		user.EncryptedRefreshToken = enc
	}
	if err := s.store.PutUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	token, err := randomHex(sessionTokenBytes)
	if err != nil {
		return nil, err
	}
	sess := &model.Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.sessionTTL),
		Active:    true,
		CreatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.InfoContext(ctx, "user signed in",
		slog.String("user_id", user.ID),
		slog.Bool("refresh_token_issued", tok.RefreshToken != ""),
	)
	return &CallbackResult{User: user, SessionToken: token, ExpiresAt: sess.ExpiresAt}, nil
}

// findOrCreateUser looks the user up by Google id. The index behind that
// lookup is eventually consistent, so a miss is confirmed by a conditional
// create on the derived id; losing that race yields the winner's record.
func (s *Service) findOrCreateUser(ctx context.Context, googleID string, now time.Time) (*model.User, error) {
	user, err := s.store.GetUserByGoogleID(ctx, googleID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	user = &model.User{ID: UserIDFor(googleID), GoogleID: googleID, CreatedAt: now, UpdatedAt: now}
	err = s.store.CreateUser(ctx, user)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, store.ErrConflict):
		existing, err := s.store.GetUser(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("load existing user: %w", err)
		}
		return existing, nil
	default:
		return nil, fmt.Errorf("create user: %w", err)
	}
}

// ValidateSession resolves a session token to its user. Any failure,
// including storage errors, reports false. An expired session is
// deactivated.
func (s *Service) ValidateSession(ctx context.Context, token string) (*model.Principal, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}

	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.WarnContext(ctx, "session lookup failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	if !sess.Active {
		return nil, false
	}
	if !sess.Usable(s.now()) {
		if err := s.store.DeactivateSession(ctx, token); err != nil {
			s.logger.WarnContext(ctx, "deactivate expired session failed",
				slog.String("user_id", sess.UserID),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}

	user, err := s.store.GetUser(ctx, sess.UserID)
	if err != nil {
		s.logger.WarnContext(ctx, "session user missing",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return principal(user, model.AuthSession), true
}

// Logout deactivates the session identified by token.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.New(apperr.ErrUnauthorized, "no session")
	}
	err := s.store.DeactivateSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.ErrUnauthorized, "no session")
	}
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

// CreatedAPIKey is returned once, when a key is issued.
type CreatedAPIKey struct {
	APIKey    string    `json:"apiKey"`
	KeyName   string    `json:"keyName"`
	CreatedAt time.Time `json:"createdAt"`
}

type createAPIKeyInput struct {
	KeyName string `validate:"required,max=100"`
}

// CreateAPIKey issues a new API key for userID. The plaintext secret is
// only available in the result.
func (s *Service) CreateAPIKey(ctx context.Context, userID, keyName string) (*CreatedAPIKey, error) {
	in := createAPIKeyInput{KeyName: strings.TrimSpace(keyName)}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	random, err := randomHex(apiKeySecretBytes)
	if err != nil {
		return nil, err
	}
	secret := APIKeyPrefix + random
	now := s.now()
	k := &model.APIKey{
		KeyHash:   HashAPIKey(secret),
		KeyPrefix: secret[:apiKeyDisplayChars],
		Name:      in.KeyName,
		UserID:    userID,
		Active:    true,
		CreatedAt: now,
	}
	if err := s.store.CreateAPIKey(ctx, k); err != nil {
		return nil, fmt.Errorf("save api key: %w", err)
	}

	s.logger.InfoContext(ctx, "api key created",
		slog.String("user_id", userID),
		slog.String("key_prefix", k.KeyPrefix),
	)
	return &CreatedAPIKey{APIKey: secret, KeyName: k.Name, CreatedAt: now}, nil
}

// ListAPIKeys returns userID's keys without their secrets.
func (s *Service) ListAPIKeys(ctx context.Context, userID string) ([]model.APIKey, error) {
	keys, err := s.store.ListAPIKeys(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// ValidateAPIKey resolves an exact API key secret to its owner and records
// its use. Any failure reports false.
func (s *Service) ValidateAPIKey(ctx context.Context, key string) (*model.Principal, bool) {
	if key == "" {
		return nil, false
	}
	hash := HashAPIKey(key)
	k, err := s.store.GetAPIKey(ctx, hash)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.WarnContext(ctx, "api key lookup failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	if !k.Active {
		return nil, false
	}

	user, err := s.store.GetUser(ctx, k.UserID)
	if err != nil {
		s.logger.WarnContext(ctx, "api key user missing",
			slog.String("user_id", k.UserID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if err := s.store.TouchAPIKey(ctx, hash, s.now()); err != nil {
		s.logger.WarnContext(ctx, "api key touch failed",
			slog.String("key_prefix", k.KeyPrefix),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return principal(user, model.AuthAPIKey), true
}

// HashAPIKey returns the stored digest of an API key secret.
func HashAPIKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func principal(u *model.User, method model.AuthMethod) *model.Principal {
	return &model.Principal{UserID: u.ID, Email: u.Email, Name: u.Name, Method: method}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
