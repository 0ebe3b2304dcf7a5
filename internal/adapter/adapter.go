// Package adapter defines how drivegate talks to a user's cloud drive.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jun/drivegate/internal/model"
)

// DriveProvider hands out a DriveAdapter bound to one user's credentials.
type DriveProvider interface {
	ForUser(ctx context.Context, userID string) (DriveAdapter, error)
}

// ListOptions selects a page of files.
type ListOptions struct {
	FolderID  string
	Query     string
	PageSize  int64
	PageToken string
}

// ListResult is one page of files.
type ListResult struct {
	Files         []model.DriveFile
	NextPageToken string
}

// FileMetadata is what operations need to know before acting on a file.
type FileMetadata struct {
	ID             string
	Name           string
	MimeType       string
	Size           *string
	WebContentLink string
	Parents        []string
	Trashed        bool
	OwnerEmails    []string
}

// UploadRequest describes a new file.
type UploadRequest struct {
	Name     string
	MimeType string
	ParentID string
	Content  []byte
}

// DriveAdapter is a user-scoped drive client.
type DriveAdapter interface {
	ListFiles(ctx context.Context, opts ListOptions) (*ListResult, error)

	// GetMetadata fetches the given fields, e.g. "id, name, mimeType".
	GetMetadata(ctx context.Context, fileID, fields string) (*FileMetadata, error)

	// Download returns the raw content of a binary file.
	Download(ctx context.Context, fileID string) ([]byte, error)

	// Export converts a Workspace document to mimeType and returns it.
	Export(ctx context.Context, fileID, mimeType string) ([]byte, error)

	Upload(ctx context.Context, req UploadRequest) (*model.DriveFile, error)

	// Delete issues a DELETE for fileID. drivegate reports it as a move to
	// trash.
	Delete(ctx context.Context, fileID string) error
}

// ProviderError is a non-success response from the drive provider.
type ProviderError struct {
	Op         string
	StatusCode int
	Message    string
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// StatusCode returns the provider status carried by err, or 0.
func StatusCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}
