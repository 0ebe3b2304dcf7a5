// Package store defines persistence for users, sessions, API keys, and
// audit entries. dynamo holds the production implementation and memory the
// one used in tests and when no DynamoDB client is configured.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jun/drivegate/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a create finds the record already there.
	ErrConflict = errors.New("record already exists")
)

// TokenUpdate describes a refresh. An empty EncryptedRefreshToken keeps the
// stored value.
type TokenUpdate struct {
	AccessToken           string
	EncryptedRefreshToken string
	Expiry                time.Time
	UpdatedAt             time.Time
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	// CreateUser inserts user, returning ErrConflict if its id is taken.
	CreateUser(ctx context.Context, user *model.User) error
	PutUser(ctx context.Context, user *model.User) error
	UpdateUserTokens(ctx context.Context, id string, upd TokenUpdate) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, token string) (*model.Session, error)
	DeactivateSession(ctx context.Context, token string) error
}

type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k *model.APIKey) error
	GetAPIKey(ctx context.Context, keyHash string) (*model.APIKey, error)
	ListAPIKeys(ctx context.Context, userID string) ([]model.APIKey, error)
	TouchAPIKey(ctx context.Context, keyHash string, usedAt time.Time) error
}

type AuditStore interface {
	AppendAudit(ctx context.Context, e *model.AuditLogEntry) error
}

// Store is everything drivegate persists.
type Store interface {
	UserStore
	SessionStore
	APIKeyStore
	AuditStore
}
