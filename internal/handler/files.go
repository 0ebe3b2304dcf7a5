package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/drivegate/internal/apperr"
	"github.com/jun/drivegate/internal/auth"
	"github.com/jun/drivegate/internal/files"
	"github.com/jun/drivegate/internal/model"
)

// Authenticate resolves the caller of a request.
type Authenticate func(ctx context.Context, req events.APIGatewayProxyRequest) (*model.Principal, bool)

// BySession authenticates browser callers with a session token.
func BySession(s *auth.Service) Authenticate {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (*model.Principal, bool) {
		return s.ValidateSession(ctx, SessionToken(req))
	}
}

// ByAPIKey authenticates scripted callers with an API key.
func ByAPIKey(s *auth.Service) Authenticate {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (*model.Principal, bool) {
		return s.ValidateAPIKey(ctx, APIKey(req))
	}
}

// FileHandler serves file operations for one authentication scheme.
type FileHandler struct {
	files        *files.Service
	authenticate Authenticate
	logger       *slog.Logger
}

// NewFileHandler creates a FileHandler.
func NewFileHandler(f *files.Service, authenticate Authenticate, logger *slog.Logger) *FileHandler {
	return &FileHandler{files: f, authenticate: authenticate, logger: logger}
}

// List handles GET /files.
func (h *FileHandler) List(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	p, ok := h.authenticate(ctx, req)
	if !ok {
		return unauthorized(), nil
	}

	q := req.QueryStringParameters
	in := files.ListInput{
		FolderID:  q["folderId"],
		Query:     q["query"],
		PageToken: q["pageToken"],
	}
	if raw := q["pageSize"]; raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ErrorResponse(ctx, h.logger, apperr.New(apperr.ErrInvalidInput, "pageSize must be a number")), nil
		}
		in.PageSize = n
	}

	out, err := h.files.List(ctx, p, in)
	if err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}
	return jsonResponse(http.StatusOK, out), nil
}

// Upload handles POST /files.
func (h *FileHandler) Upload(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	p, ok := h.authenticate(ctx, req)
	if !ok {
		return unauthorized(), nil
	}

	var in files.UploadInput
	if err := decodeBody(req, &in); err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}

	out, err := h.files.Upload(ctx, p, in)
	if err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}
	return jsonResponse(http.StatusCreated, out), nil
}

// Download handles GET /files/{id}/download.
func (h *FileHandler) Download(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	p, ok := h.authenticate(ctx, req)
	if !ok {
		return unauthorized(), nil
	}

	out, err := h.files.Download(ctx, p, req.PathParameters["id"])
	if err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}
	return jsonResponse(http.StatusOK, out), nil
}

// Delete handles DELETE /files/{id}.
func (h *FileHandler) Delete(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	p, ok := h.authenticate(ctx, req)
	if !ok {
		return unauthorized(), nil
	}

	out, err := h.files.Delete(ctx, p, req.PathParameters["id"])
	if err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}
	return jsonResponse(http.StatusOK, out), nil
}

// Open handles GET /files/{id}/open.
func (h *FileHandler) Open(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	p, ok := h.authenticate(ctx, req)
	if !ok {
		return unauthorized(), nil
	}

	out, err := h.files.OpenWorkspaceDoc(ctx, p, req.PathParameters["id"])
	if err != nil {
		return ErrorResponse(ctx, h.logger, err), nil
	}
	return jsonResponse(http.StatusOK, out), nil
}
