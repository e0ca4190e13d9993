package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/digicoders/feeledger/internal"
	"github.com/google/uuid"
)

// StoredFile is what the ledger keeps about an uploaded attachment.
type StoredFile struct {
	URL       string `json:"url"`
	StorageID string `json:"storage_id"`
}

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".pdf":  true,
}

var ErrFileTooLarge = internal.NewValidationFieldError("image", "image exceeds the maximum upload size", internal.ErrCodeValidationFailed)

// LocalStore keeps attachments on local disk under Dir and serves them from BaseURL.
type LocalStore struct {
	dir      string
	baseURL  string
	maxBytes int64
	logger   *slog.Logger
}

func NewLocalStore(cfg internal.StorageConfig, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{
		dir:      cfg.UploadDir,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxBytes: cfg.MaxUploadBytes,
		logger:   logger,
	}, nil
}

// Dir is the directory the files are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Upload(ctx context.Context, filename, contentType string, content io.Reader) (*StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, internal.NewValidationFieldError("image", "image must be a jpg, png, webp or pdf file", internal.ErrCodeValidationFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	storageID := uuid.NewString() + ext
	path := filepath.Join(s.dir, storageID)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	reader := content
	if s.maxBytes > 0 {
		reader = io.LimitReader(content, s.maxBytes+1)
	}
	written, copyErr := io.Copy(f, reader)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write file: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to close file: %w", closeErr)
	case s.maxBytes > 0 && written > s.maxBytes:
		_ = os.Remove(path)
		return nil, ErrFileTooLarge
	}

	s.logger.Debug("attachment stored", "storage_id", storageID, "content_type", contentType, "bytes", written)
	return &StoredFile{
		URL:       s.baseURL + "/" + storageID,
		StorageID: storageID,
	}, nil
}

// Delete removes a stored file. Unknown ids are not an error.
func (s *LocalStore) Delete(ctx context.Context, storageID string) error {
	if storageID == "" || storageID != filepath.Base(storageID) {
		return fmt.Errorf("invalid storage id %q", storageID)
	}
	if err := os.Remove(filepath.Join(s.dir, storageID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
