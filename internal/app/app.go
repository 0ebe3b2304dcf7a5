// Package app wires drivegate's components and routes API Gateway requests
// to handlers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jun/drivegate/internal/adapter/googledrive"
	"github.com/jun/drivegate/internal/audit"
	"github.com/jun/drivegate/internal/auth"
	"github.com/jun/drivegate/internal/config"
	"github.com/jun/drivegate/internal/crypto"
	"github.com/jun/drivegate/internal/files"
	"github.com/jun/drivegate/internal/handler"
	"github.com/jun/drivegate/internal/metrics"
	"github.com/jun/drivegate/internal/secret"
	"github.com/jun/drivegate/internal/store"
	"github.com/jun/drivegate/internal/store/dynamo"
	"github.com/jun/drivegate/internal/store/memory"
)

const devStateSecret = "drivegate-dev-state-secret"

// Deps are the collaborators App is built from.
type Deps struct {
	Config    *config.Config
	Store     store.Store
	Encryptor crypto.Encryptor
	Secrets   secret.Resolver
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// App holds the handlers for the Lambda function.
type App struct {
	authHandler *handler.AuthHandler
	fileHandler *handler.FileHandler
	apiHandler  *handler.FileHandler
	audit       *audit.Logger
	logger      *slog.Logger

	devMode          bool
	frontendURL      string
	apiGatewaySecret string
}

// NewApp initializes the application from the environment. In dev mode it
// reads secrets from env vars and keeps data in memory unless
// DYNAMODB_ENDPOINT points at LocalStack.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	deps := Deps{Config: cfg, Logger: logger, Metrics: metrics.New(reg)}

	if cfg.DevMode && cfg.DynamoEndpoint == "" {
		logger.Info("using in-memory store and dev encryptor (DEV_MODE=true)")
		deps.Store = memory.New()
		deps.Encryptor = crypto.NewDevEncryptor()
		deps.Secrets = secret.NewEnvResolver()
		return New(ctx, deps)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	})
	deps.Store = dynamo.New(dynamoClient, dynamo.Tables{
		Users:     cfg.UsersTable,
		Sessions:  cfg.SessionsTable,
		APIKeys:   cfg.APIKeysTable,
		AuditLogs: cfg.AuditLogsTable,
	})

	if cfg.DevMode {
		logger.Info("using DynamoDB at custom endpoint with dev encryptor", slog.String("endpoint", cfg.DynamoEndpoint))
		deps.Encryptor = crypto.NewDevEncryptor()
		deps.Secrets = secret.NewEnvResolver()
	} else {
		deps.Encryptor = crypto.NewKMSEncryptor(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
		deps.Secrets = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}
	return New(ctx, deps)
}

// New builds an App from explicit dependencies.
func New(ctx context.Context, d Deps) (*App, error) {
	cfg := d.Config

	clientSecret, ok := secret.Lookup(ctx, d.Secrets, cfg.GoogleClientSecretParam, "")
	if !ok {
		d.Logger.Warn("google client secret not resolved", slog.String("param", cfg.GoogleClientSecretParam))
	}
	stateSecret, ok := secret.Lookup(ctx, d.Secrets, cfg.StateSecretParam, "")
	if !ok {
		if !cfg.DevMode {
			return nil, fmt.Errorf("resolve oauth state secret %q: not found", cfg.StateSecretParam)
		}
		stateSecret = devStateSecret
	}
	apiGatewaySecret, ok := secret.Lookup(ctx, d.Secrets, cfg.APIGatewaySecretParam, "")
	if !ok && !cfg.DevMode {
		return nil, fmt.Errorf("resolve api gateway secret %q: not found", cfg.APIGatewaySecretParam)
	}

	oauthConfig := cfg.OAuth(clientSecret)
	refresher := auth.NewTokenRefresher(d.Store, oauthConfig, d.Encryptor, cfg.TokenRefreshBuffer, d.Logger, d.Metrics)
	authService := auth.NewService(d.Store, auth.Options{
		OAuth:            oauthConfig,
		StateSecret:      []byte(stateSecret),
		UserinfoEndpoint: cfg.UserinfoEndpoint,
		SessionTTL:       cfg.SessionTTL,
		Encryptor:        d.Encryptor,
		Logger:           d.Logger,
	})

	drives := googledrive.NewProvider(refresher, cfg.DriveEndpoint, cfg.DriveUploadURL, nil)
	auditLog := audit.New(d.Store, cfg.AuditQueueSize, d.Logger, d.Metrics)
	fileService := files.NewService(drives, auditLog, d.Logger, d.Metrics)

	return &App{
		authHandler:      handler.NewAuthHandler(authService, d.Logger, cfg.SessionTTL, !cfg.DevMode),
		fileHandler:      handler.NewFileHandler(fileService, handler.BySession(authService), d.Logger),
		apiHandler:       handler.NewFileHandler(fileService, handler.ByAPIKey(authService), d.Logger),
		audit:            auditLog,
		logger:           d.Logger,
		devMode:          cfg.DevMode,
		frontendURL:      cfg.FrontendURL,
		apiGatewaySecret: apiGatewaySecret,
	}, nil
}

// Close drains pending audit entries.
func (app *App) Close() {
	app.audit.Close()
}

// HandleRequest routes API Gateway requests to the appropriate handler.
// Audit entries queued by the request are written before it returns.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	defer app.audit.Flush()

	path := req.Path
	method := req.HTTPMethod
	app.logger.DebugContext(ctx, "request", slog.String("method", method), slog.String("path", path))

	// CORS Preflight
	if method == http.MethodOptions {
		return app.cors(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	// Only CloudFront knows the origin secret.
	if !app.devMode && handler.Header(req, "X-Origin-Verify") != app.apiGatewaySecret {
		app.logger.WarnContext(ctx, "blocked request without valid origin header", slog.String("path", path))
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusForbidden,
			Body:       "Forbidden: Access denied",
		}, nil
	}

	// Strip /api prefix if present (for CloudFront proxying)
	if path == "/api" || strings.HasPrefix(path, "/api/") {
		path = strings.TrimPrefix(path, "/api")
	}
	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	resp, err := app.route(ctx, method, path, req)
	if err != nil {
		app.logger.ErrorContext(ctx, "handler error", slog.String("error", err.Error()))
		resp = events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return app.cors(resp), nil
}

func (app *App) route(ctx context.Context, method, path string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch {
	case method == http.MethodGet && path == "/auth/url":
		return app.authHandler.AuthURL(ctx, req)
	case method == http.MethodGet && path == "/auth/login":
		return app.authHandler.Login(ctx, req)
	case method == http.MethodGet && path == "/auth/callback":
		return app.authHandler.Callback(ctx, req)
	case method == http.MethodPost && path == "/auth/logout":
		return app.authHandler.Logout(ctx, req)
	case method == http.MethodPost && path == "/auth/api-keys":
		return app.authHandler.CreateAPIKey(ctx, req)
	case method == http.MethodGet && path == "/auth/api-keys":
		return app.authHandler.ListAPIKeys(ctx, req)
	}

	if rest, ok := strings.CutPrefix(path, "/v1"); ok && strings.HasPrefix(rest, "/files") {
		return routeFiles(ctx, app.apiHandler, method, rest, req, false)
	}
	if strings.HasPrefix(path, "/files") {
		return routeFiles(ctx, app.fileHandler, method, path, req, true)
	}

	return handler.NotFound(method, path), nil
}

// routeFiles dispatches /files, /files/{id}, /files/{id}/download and,
// when allowOpen is set, /files/{id}/open.
func routeFiles(ctx context.Context, h *handler.FileHandler, method, path string, req events.APIGatewayProxyRequest, allowOpen bool) (events.APIGatewayProxyResponse, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] != "files" {
		return handler.NotFound(method, path), nil
	}

	switch len(parts) {
	case 1:
		switch method {
		case http.MethodGet:
			return h.List(ctx, req)
		case http.MethodPost:
			return h.Upload(ctx, req)
		}
	case 2:
		req.PathParameters["id"] = parts[1]
		if method == http.MethodDelete {
			return h.Delete(ctx, req)
		}
	case 3:
		req.PathParameters["id"] = parts[1]
		switch {
		case method == http.MethodGet && parts[2] == "download":
			return h.Download(ctx, req)
		case method == http.MethodGet && parts[2] == "open" && allowOpen:
			return h.Open(ctx, req)
		}
	}
	return handler.NotFound(method, path), nil
}

// cors adds CORS headers to an API Gateway response.
func (app *App) cors(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.frontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,DELETE,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization,X-API-Key"
	return resp
}
