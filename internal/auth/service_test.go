package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jun/drivegate/internal/apperr"
	"github.com/jun/drivegate/internal/model"
	"github.com/jun/drivegate/internal/store"
	"github.com/jun/drivegate/internal/store/memory"
)

func TestService_AuthURL(t *testing.T) {
	fake := newFake(t)
	s := newTestService(fake, memory.New())

	raw, err := s.AuthURL()
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	require.NotEmpty(t, q.Get("state"))
	assert.NoError(t, s.verifyState(q.Get("state")))
}

func TestService_AuthURLConfigurationMissing(t *testing.T) {
	fake := newFake(t)
	for _, mutate := range []func(s *Service){
		func(s *Service) { s.oauth.ClientID = "" },
		func(s *Service) { s.oauth.RedirectURL = "" },
	} {
		s := newTestService(fake, memory.New())
		mutate(s)
		_, err := s.AuthURL()
		assert.ErrorIs(t, err, apperr.ErrConfigurationMissing)
	}
}

func TestService_CallbackCreatesUserAndSession(t *testing.T) {
	fake := newFake(t)
	st := memory.New()
	s := newTestService(fake, st)

	state, err := s.newState()
	require.NoError(t, err)
	res, err := s.Callback(context.Background(), "code-1", state)
	require.NoError(t, err)

	assert.Equal(t, "google-1", res.User.GoogleID)
	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.Equal(t, "access-1", res.User.AccessToken)
	assert.Equal(t, "dev:refresh-1", res.User.EncryptedRefreshToken)
	assert.True(t, res.User.TokenExpiry.Equal(testNow.Add(time.Hour)))
	assert.Len(t, res.SessionToken, 64)
	assert.True(t, res.ExpiresAt.Equal(testNow.Add(24*time.Hour)))

	sess, err := st.GetSession(context.Background(), res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, sess.UserID)
	assert.True(t, sess.Active)
	assert.Equal(t, 1, fake.CountGrants("authorization_code"))
	assert.Equal(t, 1, fake.CountCalls(http.MethodGet, "/oauth2/v2/userinfo"))
}

func TestService_CallbackIdempotentOnGoogleID(t *testing.T) {
	fake := newFake(t)
	st := memory.New()
	s := newTestService(fake, st)

	first, err := s.Callback(context.Background(), "code-1", "")
	require.NoError(t, err)

	later := testNow.Add(time.Hour)
	s.now = func() time.Time { return later }
	fake.SetProfile(fakegoogleProfile("Ada Lovelace"))
	second, err := s.Callback(context.Background(), "code-2", "")
	require.NoError(t, err)

	assert.Equal(t, 1, st.UserCount())
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.True(t, second.User.CreatedAt.Equal(first.User.CreatedAt))
	assert.True(t, second.User.UpdatedAt.After(first.User.UpdatedAt))
	assert.Equal(t, "Ada Lovelace", second.User.Name)
	assert.NotEqual(t, first.SessionToken, second.SessionToken)

	_, ok := s.ValidateSession(context.Background(), first.SessionToken)
	assert.True(t, ok, "earlier sessions stay valid")
}

// staleIndex never finds users by Google id, like a GSI that has not caught
// up with a recent write.
type staleIndex struct {
	*memory.Store
}

func (staleIndex) GetUserByGoogleID(context.Context, string) (*model.User, error) {
	return nil, store.ErrNotFound
}

func TestService_CallbackStaleIndexKeepsOneUser(t *testing.T) {
	fake := newFake(t)
	st := memory.New()
	s := newTestService(fake, st)
	s.store = staleIndex{st}

	first, err := s.Callback(context.Background(), "code-1", "")
	require.NoError(t, err)
	s.now = func() time.Time { return testNow.Add(time.Minute) }
	second, err := s.Callback(context.Background(), "code-2", "")
	require.NoError(t, err)

	assert.Equal(t, 1, st.UserCount())
	assert.Equal(t, UserIDFor("google-1"), first.User.ID)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.True(t, second.User.CreatedAt.Equal(testNow))
	assert.Equal(t, "access-2", second.User.AccessToken)
}

func TestUserIDFor(t *testing.T) {
	assert.Equal(t, UserIDFor("g-1"), UserIDFor("g-1"))
	assert.NotEqual(t, UserIDFor("g-1"), UserIDFor("g-2"))
}

func TestService_CallbackRejectsBadState(t *testing.T) {
	fake := newFake(t)
	s := newTestService(fake, memory.New())

	other := newTestService(fake, memory.New())
	other.stateSecret = []byte("another-secret")
	forged, err := other.newState()
	require.NoError(t, err)

	stale, err := s.newState()
	require.NoError(t, err)

	for name, state := range map[string]string{"garbage": "not-a-jwt", "forged": forged} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Callback(context.Background(), "code", state)
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		})
	}

	t.Run("expired", func(t *testing.T) {
		s.now = func() time.Time { return testNow.Add(stateTTL + time.Minute) }
		_, err := s.Callback(context.Background(), "code", stale)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	assert.Zero(t, fake.CountGrants("authorization_code"))
}

func TestService_CallbackExchangeFailure(t *testing.T) {
	fake := newFake(t)
	fake.Fail(http.MethodPost, "/token", http.StatusBadRequest)
	s := newTestService(fake, memory.New())

	_, err := s.Callback(context.Background(), "bad-code", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = s.Callback(context.Background(), "  ", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestService_ValidateSession(t *testing.T) {
	st := memory.New()
	fake := newFake(t)
	s := newTestService(fake, st)
	ctx := context.Background()
	seedUser(t, st, "u1", testNow.Add(time.Hour))

	put := func(token, userID string, expires time.Time, active bool) {
		require.NoError(t, st.CreateSession(ctx, &model.Session{Token: token, UserID: userID, ExpiresAt: expires, Active: active, CreatedAt: testNow}))
	}
	put("good", "u1", testNow.Add(time.Hour), true)
	put("expired", "u1", testNow.Add(-time.Second), true)
	put("inactive", "u1", testNow.Add(time.Hour), false)
	put("orphan", "nobody", testNow.Add(time.Hour), true)

	p, ok := s.ValidateSession(ctx, "  good\n")
	require.True(t, ok)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "u1@example.com", p.Email)
	assert.Equal(t, model.AuthSession, p.Method)

	for _, tok := range []string{"", "   ", "unknown", "inactive", "orphan"} {
		_, ok := s.ValidateSession(ctx, tok)
		assert.False(t, ok, "token %q", tok)
	}

	_, ok = s.ValidateSession(ctx, "expired")
	assert.False(t, ok)
	sess, err := st.GetSession(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, sess.Active, "expired session is deactivated on first failed validation")
}

func TestService_ValidateSessionStorageError(t *testing.T) {
	st := memory.New()
	st.SessionErr = errors.New("dynamodb unavailable")
	s := newTestService(newFake(t), st)

	_, ok := s.ValidateSession(context.Background(), "anything")
	assert.False(t, ok)
}

func TestService_Logout(t *testing.T) {
	fake := newFake(t)
	st := memory.New()
	s := newTestService(fake, st)

	res, err := s.Callback(context.Background(), "code", "")
	require.NoError(t, err)

	require.NoError(t, s.Logout(context.Background(), res.SessionToken))
	_, ok := s.ValidateSession(context.Background(), res.SessionToken)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Logout(context.Background(), "unknown"), apperr.ErrUnauthorized)
	assert.ErrorIs(t, s.Logout(context.Background(), ""), apperr.ErrUnauthorized)
}

func TestService_APIKeys(t *testing.T) {
	st := memory.New()
	s := newTestService(newFake(t), st)
	ctx := context.Background()
	seedUser(t, st, "u1", testNow.Add(time.Hour))

	k1, err := s.CreateAPIKey(ctx, "u1", "laptop")
	require.NoError(t, err)
	k2, err := s.CreateAPIKey(ctx, "u1", " ci ")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(k1.APIKey, APIKeyPrefix))
	assert.Len(t, k1.APIKey, len(APIKeyPrefix)+64)
	assert.NotEqual(t, k1.APIKey, k2.APIKey)
	assert.Equal(t, "ci", k2.KeyName)

	for _, k := range []*CreatedAPIKey{k1, k2} {
		p, ok := s.ValidateAPIKey(ctx, k.APIKey)
		require.True(t, ok)
		assert.Equal(t, "u1", p.UserID)
		assert.Equal(t, model.AuthAPIKey, p.Method)
	}

	_, ok := s.ValidateAPIKey(ctx, " "+k1.APIKey)
	assert.False(t, ok, "api keys require an exact match")
	_, ok = s.ValidateAPIKey(ctx, "dgk_unknown")
	assert.False(t, ok)
	_, ok = s.ValidateAPIKey(ctx, "")
	assert.False(t, ok)

	keys, err := s.ListAPIKeys(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.NotContains(t, k.KeyHash, APIKeyPrefix)
		assert.True(t, strings.HasPrefix(k.KeyPrefix, APIKeyPrefix))
		require.NotNil(t, k.LastUsedAt)
		assert.True(t, k.LastUsedAt.Equal(testNow))
	}
}

func TestService_CreateAPIKeyValidation(t *testing.T) {
	s := newTestService(newFake(t), memory.New())

	_, err := s.CreateAPIKey(context.Background(), "u1", "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = s.CreateAPIKey(context.Background(), "u1", strings.Repeat("x", 101))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestService_InactiveAPIKey(t *testing.T) {
	st := memory.New()
	s := newTestService(newFake(t), st)
	ctx := context.Background()
	seedUser(t, st, "u1", testNow.Add(time.Hour))

	secret := APIKeyPrefix + strings.Repeat("ab", 32)
	require.NoError(t, st.CreateAPIKey(ctx, &model.APIKey{KeyHash: HashAPIKey(secret), KeyPrefix: secret[:12], UserID: "u1", Active: false, CreatedAt: testNow}))

	_, ok := s.ValidateAPIKey(ctx, secret)
	assert.False(t, ok)
}
