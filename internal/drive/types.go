package drive

import (
	"context"
	"errors"
)

const (
	// FolderMimeType is the MIME type for Google Drive folders
	FolderMimeType = "application/vnd.google-apps.folder"

	// DefaultMimeType is the content type the mailbox drains.
	DefaultMimeType = "text/markdown"
)

var (
	// ErrNotFound is returned when a file disappeared before it could be downloaded.
	ErrNotFound = errors.New("file not found")

	// ErrListFailed is returned when the mailbox listing is rejected.
	ErrListFailed = errors.New("failed to list files")

	// ErrDownloadFailed is returned when a download is rejected for a reason other than 404.
	ErrDownloadFailed = errors.New("failed to download file")

	// ErrUnauthorized is returned when Drive still answers 401 after one refresh and replay.
	ErrUnauthorized = errors.New("drive rejected credentials after refresh")
)

// Credentials supplies bearer tokens and can force a refresh after a 401.
type Credentials interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// FileInfo is an immutable snapshot of one listed mailbox file.
type FileInfo struct {
	// ID is the unique identifier for the file
	ID string `json:"id"`

	// Name is the name of the file
	Name string `json:"name"`

	// MimeType is the MIME type of the file
	MimeType string `json:"mimeType"`

	// ModifiedTime is the RFC 3339 timestamp Drive reported
	ModifiedTime string `json:"modifiedTime"`
}
