// Package files implements the user-facing Drive operations: list, upload,
// download, delete and open. Every operation is audited.
package files

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jun/drivegate/internal/adapter"
	"github.com/jun/drivegate/internal/adapter/googledrive"
	"github.com/jun/drivegate/internal/apperr"
	"github.com/jun/drivegate/internal/metrics"
	"github.com/jun/drivegate/internal/model"
	"github.com/jun/drivegate/internal/validate"
)

const (
	DefaultPageSize = 100

	downloadFields = "id, name, mimeType, size, webContentLink"
	deleteFields   = "id, name, parents, trashed, owners"
	openFields     = "id, name, mimeType"
)

// Auditor records audit entries without blocking or failing the caller.
type Auditor interface {
	Record(ctx context.Context, e model.AuditLogEntry)
}

// Service runs file operations on behalf of an authenticated principal.
type Service struct {
	drives  adapter.DriveProvider
	audit   Auditor
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService creates a Service.
func NewService(drives adapter.DriveProvider, audit Auditor, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{drives: drives, audit: audit, logger: logger, metrics: m}
}

type ListInput struct {
	FolderID  string `json:"folderId"`
	Query     string `json:"query"`
	PageSize  int64  `json:"pageSize" validate:"omitempty,gte=1,lte=1000"`
	PageToken string `json:"pageToken"`
}

type ListOutput struct {
	Files         []model.DriveFile `json:"files"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

// List returns one page of the caller's non-trashed files.
func (s *Service) List(ctx context.Context, p *model.Principal, in ListInput) (out *ListOutput, err error) {
	defer func() { s.observe("list", err) }()

	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.PageSize == 0 {
		in.PageSize = DefaultPageSize
	}

	d, err := s.drives.ForUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	res, err := d.ListFiles(ctx, adapter.ListOptions{
		FolderID:  in.FolderID,
		Query:     in.Query,
		PageSize:  in.PageSize,
		PageToken: in.PageToken,
	})
	if err != nil {
		return nil, providerError(apperr.ErrDriveAPI, err, "list files")
	}

	meta := map[string]any{"pageSize": in.PageSize, "resultCount": len(res.Files)}
	putIfSet(meta, "folderId", in.FolderID)
	putIfSet(meta, "query", in.Query)
	putIfSet(meta, "pageToken", in.PageToken)
	s.audit.Record(ctx, model.AuditLogEntry{UserID: p.UserID, Action: model.AuditList, Metadata: meta})

	return &ListOutput{Files: res.Files, NextPageToken: res.NextPageToken}, nil
}

type UploadInput struct {
	Name     string `json:"name" validate:"required,max=1024"`
	MimeType string `json:"mimeType" validate:"required,max=255"`
	ParentID string `json:"parentId"`
	// Content is base64; empty uploads a zero-byte file.
	Content  string `json:"content"`
}

type UploadOutput struct {
	File model.DriveFile `json:"file"`
}

// Upload creates a file from base64 content.
func (s *Service) Upload(ctx context.Context, p *model.Principal, in UploadInput) (out *UploadOutput, err error) {
	defer func() { s.observe("upload", err) }()

	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	content, err := base64.StdEncoding.DecodeString(in.Content)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, err, "content must be base64 encoded")
	}

	d, err := s.drives.ForUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	f, err := d.Upload(ctx, adapter.UploadRequest{
		Name:     in.Name,
		MimeType: in.MimeType,
		ParentID: in.ParentID,
		Content:  content,
	})
	if err != nil {
		return nil, providerError(apperr.ErrUploadFailed, err, "upload file")
	}

	meta := map[string]any{"mimeType": in.MimeType, "size": len(content)}
	putIfSet(meta, "parentId", in.ParentID)
	s.audit.Record(ctx, model.AuditLogEntry{
		UserID:   p.UserID,
		Action:   model.AuditUpload,
		FileID:   f.ID,
		FileName: f.Name,
		Metadata: meta,
	})
	return &UploadOutput{File: *f}, nil
}

type DownloadOutput struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
}

// Download returns a file's content base64 encoded. Workspace documents are
// exported to their office equivalent and named accordingly.
func (s *Service) Download(ctx context.Context, p *model.Principal, fileID string) (out *DownloadOutput, err error) {
	defer func() { s.observe("download", err) }()

	if err := requireFileID(fileID); err != nil {
		return nil, err
	}
	d, err := s.drives.ForUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	meta, err := d.GetMetadata(ctx, fileID, downloadFields)
	if err != nil {
		return nil, metadataError(err, false)
	}

	name, mimeType := meta.Name, meta.MimeType
	var content []byte
	// Workspace types without an export format (forms, sites, folders)
	// go through alt=media, which Drive refuses.
	if format, ok := googledrive.ExportFormatFor(meta.MimeType); ok {
		content, err = d.Export(ctx, fileID, format.MimeType)
		name = googledrive.WithExtension(meta.Name, format.Extension)
		mimeType = format.MimeType
	} else {
		content, err = d.Download(ctx, fileID)
	}
	if err != nil {
		return nil, providerError(apperr.ErrFetchFailed, err, "download file")
	}

	s.audit.Record(ctx, model.AuditLogEntry{
		UserID:   p.UserID,
		Action:   model.AuditDownload,
		FileID:   fileID,
		FileName: name,
		Metadata: map[string]any{
			"size":             len(content),
			"mimeType":         mimeType,
			"originalMimeType": meta.MimeType,
		},
	})
	return &DownloadOutput{
		Content:  base64.StdEncoding.EncodeToString(content),
		MimeType: mimeType,
		Name:     name,
	}, nil
}

type DeleteOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Delete moves a file the caller owns to the trash. A file already in the
// trash is reported with Success false and left untouched.
func (s *Service) Delete(ctx context.Context, p *model.Principal, fileID string) (out *DeleteOutput, err error) {
	var fileName string
	defer func() {
		s.observe("delete", err)
		if err != nil {
			s.audit.Record(ctx, model.AuditLogEntry{
				UserID:   p.UserID,
				Action:   model.AuditDelete,
				FileID:   fileID,
				FileName: fileName,
				Metadata: map[string]any{"operation": "delete_failed", "error": apperr.Message(err)},
			})
		}
	}()

	if err := requireFileID(fileID); err != nil {
		return nil, err
	}
	d, err := s.drives.ForUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	meta, err := d.GetMetadata(ctx, fileID, deleteFields)
	if err != nil {
		return nil, metadataError(err, false)
	}
	fileName = meta.Name

	if !ownedBy(meta, p.Email) {
		return nil, apperr.New(apperr.ErrPermissionDenied, "only the owner can delete %q", meta.Name)
	}
	if meta.Trashed {
		return &DeleteOutput{Success: false, Message: "File is already in trash"}, nil
	}

	if err := d.Delete(ctx, fileID); err != nil {
		return nil, providerError(apperr.ErrDriveAPI, err, "delete file")
	}

	s.audit.Record(ctx, model.AuditLogEntry{
		UserID:   p.UserID,
		Action:   model.AuditDelete,
		FileID:   fileID,
		FileName: meta.Name,
		Metadata: map[string]any{"operation": "move_to_trash"},
	})
	return &DeleteOutput{Success: true, Message: fmt.Sprintf("File %q moved to trash", meta.Name)}, nil
}

type OpenOutput struct {
	EditURL string `json:"editUrl"`
	ViewURL string `json:"viewUrl"`
}

// OpenWorkspaceDoc returns the browser links for a Workspace document.
func (s *Service) OpenWorkspaceDoc(ctx context.Context, p *model.Principal, fileID string) (out *OpenOutput, err error) {
	defer func() { s.observe("open", err) }()

	if err := requireFileID(fileID); err != nil {
		return nil, err
	}
	d, err := s.drives.ForUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	meta, err := d.GetMetadata(ctx, fileID, openFields)
	if err != nil {
		return nil, metadataError(err, true)
	}

	urls, ok := googledrive.OpenURLs(meta.MimeType, fileID)
	if !ok {
		return nil, apperr.New(apperr.ErrNotWorkspaceDocument, "%q (%s) is not a workspace document", meta.Name, meta.MimeType)
	}
	workspaceType, _ := googledrive.WorkspaceType(meta.MimeType)

	s.audit.Record(ctx, model.AuditLogEntry{
		UserID:   p.UserID,
		Action:   model.AuditOpen,
		FileID:   fileID,
		FileName: meta.Name,
		Metadata: map[string]any{
			"mimeType":      meta.MimeType,
			"workspaceType": workspaceType,
			"editUrl":       urls.Edit,
			"viewUrl":       urls.View,
		},
	})
	return &OpenOutput{EditURL: urls.Edit, ViewURL: urls.View}, nil
}

func (s *Service) observe(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		s.logger.Warn("file operation failed",
			slog.String("operation", op),
			slog.String("code", apperr.Code(err)),
			slog.String("error", err.Error()),
		)
	}
	s.metrics.DriveCalls.WithLabelValues(op, outcome).Inc()
}

func ownedBy(meta *adapter.FileMetadata, email string) bool {
	if email == "" {
		return false
	}
	for _, o := range meta.OwnerEmails {
		if strings.EqualFold(o, email) {
			return true
		}
	}
	return false
}

func requireFileID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.New(apperr.ErrInvalidInput, "file id is required")
	}
	return nil
}

// metadataError classifies a failed metadata fetch. mapForbidden turns a
// provider 403 into PermissionDenied.
func metadataError(err error, mapForbidden bool) error {
	switch status := adapter.StatusCode(err); {
	case status == http.StatusNotFound:
		return providerError(apperr.ErrFileNotFound, err, "file not found")
	case mapForbidden && status == http.StatusForbidden:
		return providerError(apperr.ErrPermissionDenied, err, "access to file denied")
	default:
		return providerError(apperr.ErrFetchFailed, err, "fetch file metadata")
	}
}

func providerError(kind error, err error, msg string) error {
	var pe *adapter.ProviderError
	if errors.As(err, &pe) {
		return apperr.Provider(kind, pe.StatusCode, pe.Body, "%s: %s", msg, pe.Message)
	}
	return apperr.Wrap(kind, err, "%s", msg)
}

func putIfSet(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
