package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/domain"
	"github.com/spf13/afero"
)

// RestoreRequest names one remote artifact to restore.
type RestoreRequest struct {
	Name    string
	Monthly bool
	// Keep leaves the downloaded file in the restore directory.
	Keep bool
}

type Restore struct {
	dbName   string
	store    domain.Storage
	restorer domain.Restorer
	logger   domain.Logger
	cfg      *config.Config
	fs       afero.Fs
}

func NewRestore(
	store domain.Storage,
	restorer domain.Restorer,
	logger domain.Logger,
	cfg *config.Config,
) *Restore {
	return &Restore{
		dbName:   cfg.Database.Name,
		store:    store,
		restorer: restorer,
		logger:   logger,
		cfg:      cfg,
		fs:       afero.NewOsFs(),
	}
}

func (uc *Restore) Execute(ctx context.Context, req RestoreRequest) error {
	if !domain.IsArtifactOf(uc.dbName, req.Name) {
		return fmt.Errorf("%q is not a dump of %s", req.Name, uc.dbName)
	}

	dir := uc.cfg.Remote.DailyPath
	if req.Monthly {
		dir = uc.cfg.Remote.MonthlyPath
	}

	restoreDir := uc.cfg.RestoreDir()
	if err := uc.fs.MkdirAll(restoreDir, 0750); err != nil {
		return fmt.Errorf("create restore dir: %w", err)
	}
	localPath := filepath.Join(restoreDir, req.Name)

	start := time.Now()
	uc.logger.Infof("[%s] Downloading %s/%s", uc.dbName, dir, req.Name)

	dlCtx, cancel := withTimeout(ctx, uc.cfg.Timeouts.Upload)
	err := uc.store.Download(dlCtx, dir, req.Name, localPath)
	cancel()
	if err != nil {
		// a broken transfer can leave a truncated file behind
		if rmErr := uc.fs.Remove(localPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			uc.logger.Warnf("[%s] Failed to remove partial download %s: %v", uc.dbName, localPath, rmErr)
		}
		return fmt.Errorf("download %s: %w", req.Name, err)
	}

	if !req.Keep {
		defer func() {
			if err := uc.fs.Remove(localPath); err != nil {
				uc.logger.Warnf("[%s] Failed to remove %s: %v", uc.dbName, localPath, err)
			}
		}()
	}

	restoreCtx, cancel := withTimeout(ctx, uc.cfg.Timeouts.Dump)
	defer cancel()

	if err := uc.restorer.Restore(restoreCtx, localPath); err != nil {
		return fmt.Errorf("restore %s: %w", req.Name, err)
	}

	uc.logger.Infof("[%s] Restore of %s completed in %s", uc.dbName, req.Name, time.Since(start).Round(time.Second))
	return nil
}
