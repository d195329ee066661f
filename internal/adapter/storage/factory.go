package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/domain"
	"github.com/spf13/afero"
)

const retryDelay = 2 * time.Second

// New builds the configured backend wrapped with retries.
func New(ctx context.Context, cfg *config.RemoteConfig, logger domain.Logger) (domain.Storage, error) {
	var (
		backend domain.Storage
		err     error
	)

	switch cfg.Backend {
	case "gdrive":
		backend, err = NewGDrive(ctx, cfg)
	case "s3":
		backend, err = NewS3(ctx, cfg)
	case "gcs":
		backend, err = NewGCS(ctx, cfg)
	case "local":
		backend, err = NewLocal(afero.NewOsFs(), cfg.LocalRoot)
	default:
		return nil, fmt.Errorf("unsupported remote backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return WithRetry(backend, cfg.Retries, retryDelay, logger), nil
}
