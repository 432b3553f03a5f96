// Package drive lists and downloads research documents from Google Drive.
//
// Credentials resolution order:
//   - GOOGLE_CREDENTIALS: inline service account JSON
//   - GOOGLE_APPLICATION_CREDENTIALS: path to a service account JSON file
//   - Application Default Credentials as a fallback
package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/R1cK-ChaN/doc-parser/internal/logger"
)

// SupportedMIMEs are the document types the pipeline can parse.
var SupportedMIMEs = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/tiff",
	"image/bmp",
	"image/webp",
}

const listPageSize = 100

// File is the metadata of a file in Google Drive.
type File struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mime_type"`
	Size        int64     `json:"size"`
	CreatedTime time.Time `json:"created_time,omitempty"`
	Parents     []string  `json:"parents,omitempty"`
}

// Client wraps the Google Drive v3 API for listing and downloading files.
type Client struct {
	service *drive.Service
	log     zerolog.Logger
}

// NewClient creates a Drive client with read-only scope. credentialsJSON
// takes precedence over credentialsFile; with neither set, Application
// Default Credentials are used.
func NewClient(ctx context.Context, credentialsFile, credentialsJSON string) (*Client, error) {
	const op = "NewClient"

	opts := []option.ClientOption{option.WithScopes(drive.DriveReadonlyScope)}
	switch {
	case credentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive: %s: creating service: %w", op, err)
	}
	return NewClientWithService(service), nil
}

// NewClientWithService creates a Drive client with an explicit service
// (for testing).
func NewClientWithService(service *drive.Service) *Client {
	return &Client{
		service: service,
		log:     logger.WithComponent("drive"),
	}
}

// BuildListQuery returns the Drive query that selects supported, untrashed
// files in the given folder.
func BuildListQuery(folderID string) string {
	filters := make([]string, len(SupportedMIMEs))
	for i, m := range SupportedMIMEs {
		filters[i] = fmt.Sprintf("mimeType='%s'", m)
	}
	return fmt.Sprintf("'%s' in parents and (%s) and trashed=false", folderID, strings.Join(filters, " or "))
}

// ListFiles lists all supported files in a Drive folder, following
// pagination to the end.
func (c *Client) ListFiles(ctx context.Context, folderID string) ([]File, error) {
	const op = "ListFiles"

	var results []File
	pageToken := ""
	for {
		call := c.service.Files.List().
			Q(BuildListQuery(folderID)).
			Fields("nextPageToken, files(id, name, mimeType, size, createdTime, parents)").
			PageSize(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("drive: %s: listing folder %s: %w", op, folderID, err)
		}
		for _, f := range resp.Files {
			results = append(results, toFile(f))
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.log.Info().
		Str("folder_id", folderID).
		Int("count", len(results)).
		Msg("Listed supported files")
	return results, nil
}

// GetFileMetadata fetches metadata for a single file.
func (c *Client) GetFileMetadata(ctx context.Context, fileID string) (*File, error) {
	const op = "GetFileMetadata"

	f, err := c.service.Files.Get(fileID).
		Fields("id, name, mimeType, size, createdTime, parents").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive: %s: file %s: %w", op, fileID, err)
	}
	file := toFile(f)
	return &file, nil
}

// DownloadFile downloads a file's content to destPath, creating parent
// directories as needed.
func (c *Client) DownloadFile(ctx context.Context, fileID, destPath string) error {
	const op = "DownloadFile"

	resp, err := c.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("drive: %s: file %s: %w", op, fileID, err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("drive: %s: %w", op, err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("drive: %s: %w", op, err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("drive: %s: writing %s: %w", op, destPath, err)
	}

	c.log.Info().
		Str("file_id", fileID).
		Str("dest", destPath).
		Int64("bytes", written).
		Msg("Downloaded file")
	return nil
}

func toFile(f *drive.File) File {
	created, _ := time.Parse(time.RFC3339, f.CreatedTime)
	return File{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		CreatedTime: created,
		Parents:     f.Parents,
	}
}
