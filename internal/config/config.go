// Package config loads drivegate settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes requested during Google login.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Config holds all runtime settings. Secrets are referenced by parameter
// name and resolved separately through secret.Resolver.
type Config struct {
	DevMode  bool   `env:"DEV_MODE" envDefault:"false"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	GoogleClientID          string `env:"GOOGLE_CLIENT_ID"`
	GoogleRedirectURL       string `env:"GOOGLE_REDIRECT_URL"`
	FrontendURL             string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	GoogleClientSecretParam string `env:"GOOGLE_CLIENT_SECRET_PARAM" envDefault:"/drivegate/google-client-secret"`
	StateSecretParam        string `env:"STATE_SECRET_PARAM" envDefault:"/drivegate/state-secret"`
	APIGatewaySecretParam   string `env:"API_GATEWAY_SECRET_PARAM" envDefault:"/drivegate/api-gateway-secret"`
	KMSKeyID                string `env:"KMS_KEY_ID" envDefault:"alias/drivegate-token-key"`

	UsersTable     string `env:"USERS_TABLE" envDefault:"Users"`
	SessionsTable  string `env:"SESSIONS_TABLE" envDefault:"Sessions"`
	APIKeysTable   string `env:"API_KEYS_TABLE" envDefault:"ApiKeys"`
	AuditLogsTable string `env:"AUDIT_LOGS_TABLE" envDefault:"AuditLogs"`
	// DynamoEndpoint points DynamoDB at LocalStack. In dev mode an empty
	// value selects the in-memory store.
	DynamoEndpoint string `env:"DYNAMODB_ENDPOINT"`

	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	TokenRefreshBuffer time.Duration `env:"TOKEN_REFRESH_BUFFER" envDefault:"5m"`
	AuditQueueSize     int           `env:"AUDIT_QUEUE_SIZE" envDefault:"256"`

	// Endpoint overrides, used against emulators and in tests.
	GoogleTokenURL   string `env:"GOOGLE_TOKEN_URL"`
	UserinfoEndpoint string `env:"GOOGLE_USERINFO_ENDPOINT"`
	DriveEndpoint    string `env:"DRIVE_ENDPOINT"`
	DriveUploadURL   string `env:"DRIVE_UPLOAD_URL" envDefault:"https://www.googleapis.com/upload/drive/v3/files"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.GoogleRedirectURL == "" && cfg.DevMode {
		cfg.GoogleRedirectURL = "http://localhost:8080/auth/callback"
	}
	return &cfg, nil
}

// OAuth builds the Google OAuth2 client configuration.
func (c *Config) OAuth(clientSecret string) *oauth2.Config {
	endpoint := google.Endpoint
	if c.GoogleTokenURL != "" {
		endpoint.TokenURL = c.GoogleTokenURL
	}
	return &oauth2.Config{
		ClientID:     c.GoogleClientID,
		ClientSecret: clientSecret,
		RedirectURL:  c.GoogleRedirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}
