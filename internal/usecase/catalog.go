package usecase

import (
	"context"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/domain"
)

// RemoteArtifact is one dump found in remote storage.
type RemoteArtifact struct {
	Name string
	Date civil.Date
}

// Catalog lists the dumps of the configured database, newest first.
type Catalog struct {
	store domain.Storage
	cfg   *config.Config
}

func NewCatalog(store domain.Storage, cfg *config.Config) *Catalog {
	return &Catalog{store: store, cfg: cfg}
}

func (uc *Catalog) Execute(ctx context.Context, monthly bool) ([]RemoteArtifact, error) {
	dir := uc.cfg.Remote.DailyPath
	if monthly {
		dir = uc.cfg.Remote.MonthlyPath
	}

	ctx, cancel := withTimeout(ctx, uc.cfg.Timeouts.Remote)
	defer cancel()

	names, err := uc.store.List(ctx, dir)
	if err != nil {
		return nil, &domain.ListFailure{Dir: dir, Cause: err}
	}

	artifacts := make([]RemoteArtifact, 0, len(names))
	for _, name := range names {
		if !domain.IsArtifactOf(uc.cfg.Database.Name, name) {
			continue
		}
		date, _ := domain.DateOf(name)
		artifacts = append(artifacts, RemoteArtifact{Name: name, Date: date})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Date.After(artifacts[j].Date)
	})

	return artifacts, nil
}
