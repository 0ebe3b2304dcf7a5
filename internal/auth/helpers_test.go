package auth

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jun/drivegate/internal/crypto"
	"github.com/jun/drivegate/internal/fakegoogle"
	"github.com/jun/drivegate/internal/logger"
	"github.com/jun/drivegate/internal/metrics"
	"github.com/jun/drivegate/internal/model"
	"github.com/jun/drivegate/internal/store/memory"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testOAuth(fake *fakegoogle.Server) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Scopes:       []string{"https://www.googleapis.com/auth/drive"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.google.com/o/oauth2/auth",
			TokenURL:  fake.TokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func newFake(t *testing.T) *fakegoogle.Server {
	t.Helper()
	fake := fakegoogle.New(fakegoogle.Profile{ID: "google-1", Email: "ada@example.com", Name: "Ada", Picture: "https://example.com/ada.png"})
	t.Cleanup(fake.Close)
	return fake
}

func seedUser(t *testing.T, st *memory.Store, id string, expiry time.Time) {
	t.Helper()
	require.NoError(t, st.PutUser(context.Background(), &model.User{
		ID:                    id,
		GoogleID:              "google-" + id,
		Email:                 id + "@example.com",
		Name:                  id,
		AccessToken:           "stored-access",
		EncryptedRefreshToken: "dev:stored-refresh",
		TokenExpiry:           expiry,
		CreatedAt:             testNow.Add(-time.Hour),
		UpdatedAt:             testNow.Add(-time.Hour),
	}))
}

func newTestRefresher(fake *fakegoogle.Server, st *memory.Store, m *metrics.Metrics) *TokenRefresher {
	r := NewTokenRefresher(st, testOAuth(fake), crypto.NewDevEncryptor(), 5*time.Minute, logger.Discard(), m)
	r.now = func() time.Time { return testNow }
	return r
}

func newTestService(fake *fakegoogle.Server, st *memory.Store) *Service {
	s := NewService(st, Options{
		OAuth:            testOAuth(fake),
		StateSecret:      []byte("state-secret"),
		UserinfoEndpoint: fake.UserinfoEndpoint(),
		Encryptor:        crypto.NewDevEncryptor(),
		Logger:           logger.Discard(),
	})
	s.now = func() time.Time { return testNow }
	return s
}

func counterVecValue(t *testing.T, m *metrics.Metrics, result string) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.TokenRefreshes.WithLabelValues(result).Write(&out))
	return out.GetCounter().GetValue()
}

func fakegoogleProfile(name string) fakegoogle.Profile {
	return fakegoogle.Profile{ID: "google-1", Email: "ada@example.com", Name: name}
}
