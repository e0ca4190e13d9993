package filestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/digicoders/feeledger/internal"
)

// Store persists payment-proof attachments.
type Store interface {
	Upload(ctx context.Context, filename, contentType string, content io.Reader) (*StoredFile, error)
	Delete(ctx context.Context, storageID string) error
}

// New builds the store selected by cfg.Driver. An empty driver means local disk.
func New(cfg internal.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg, logger)
	case "oss":
		return NewOSSStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
