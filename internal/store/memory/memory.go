package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jun/drivegate/internal/model"
	"github.com/jun/drivegate/internal/store"
)

// Store keeps every table in maps. Records are copied in and out so callers
// never share memory with the store.
type Store struct {
	mu       sync.RWMutex
	users    map[string]model.User
	sessions map[string]model.Session
	apiKeys  map[string]model.APIKey
	audit    []model.AuditLogEntry

	// AuditErr, when set, is returned by AppendAudit.
	AuditErr error
	// SessionErr, when set, is returned by GetSession.
	SessionErr error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]model.User),
		sessions: make(map[string]model.Session),
		apiKeys:  make(map[string]model.APIKey),
	}
}

func (s *Store) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.GoogleID == googleID {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	if user.ID == "" {
		return errors.New("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return store.ErrConflict
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) PutUser(_ context.Context, user *model.User) error {
	if user.ID == "" {
		return errors.New("user id is required")
	}
	s.mu.Lock()
	s.users[user.ID] = *user
	s.mu.Unlock()
	return nil
}

func (s *Store) UpdateUserTokens(_ context.Context, id string, upd store.TokenUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.AccessToken = upd.AccessToken
	u.TokenExpiry = upd.Expiry
	if upd.EncryptedRefreshToken != "" {
		u.EncryptedRefreshToken = upd.EncryptedRefreshToken
	}
	u.UpdatedAt = upd.UpdatedAt
	s.users[id] = u
	return nil
}

// UserCount returns the number of stored users.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Store) CreateSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.Token]; exists {
		return errors.New("session already exists")
	}
	s.sessions[sess.Token] = *sess
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (*model.Session, error) {
	if s.SessionErr != nil {
		return nil, s.SessionErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) DeactivateSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return store.ErrNotFound
	}
	sess.Active = false
	s.sessions[token] = sess
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, k *model.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apiKeys[k.KeyHash]; exists {
		return errors.New("api key already exists")
	}
	s.apiKeys[k.KeyHash] = *k
	return nil
}

func (s *Store) GetAPIKey(_ context.Context, keyHash string) (*model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.apiKeys[keyHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &k, nil
}

func (s *Store) ListAPIKeys(_ context.Context, userID string) ([]model.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := []model.APIKey{}
	for _, k := range s.apiKeys {
		if k.UserID == userID {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b model.APIKey) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return keys, nil
}

func (s *Store) TouchAPIKey(_ context.Context, keyHash string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[keyHash]
	if !ok {
		return store.ErrNotFound
	}
	k.LastUsedAt = &usedAt
	s.apiKeys[keyHash] = k
	return nil
}

func (s *Store) AppendAudit(_ context.Context, e *model.AuditLogEntry) error {
	if s.AuditErr != nil {
		return s.AuditErr
	}
	s.mu.Lock()
	s.audit = append(s.audit, *e)
	s.mu.Unlock()
	return nil
}

// AuditLogs returns the entries written for userID, oldest first.
func (s *Store) AuditLogs(userID string) []model.AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AuditLogEntry
	for _, e := range s.audit {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}
