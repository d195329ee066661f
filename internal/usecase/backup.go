package usecase

import (
	"context"
	"errors"
	"path"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dustin/go-humanize"
	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/domain"
	"github.com/spf13/afero"
)

// Backup runs one dump, upload, prune and notify cycle.
//
// Only a failed dump or a failed daily upload aborts the run. Every later step
// degrades into a warning on the returned RunResult.
type Backup struct {
	producer domain.DumpProducer
	store    domain.Storage
	notifier domain.Notifier
	logger   domain.Logger
	cfg      *config.Config

	fs  afero.Fs
	now func() time.Time
}

func NewBackup(
	producer domain.DumpProducer,
	store domain.Storage,
	notifier domain.Notifier,
	logger domain.Logger,
	cfg *config.Config,
) *Backup {
	return &Backup{
		producer: producer,
		store:    store,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		fs:       afero.NewOsFs(),
		now:      time.Now,
	}
}

var _ domain.BackupExecutor = (*Backup)(nil)

func (uc *Backup) Execute(ctx context.Context) domain.RunResult {
	start := uc.now()
	today := civil.DateOf(start)
	db := uc.producer.GetName()

	result := domain.RunResult{Status: domain.StatusSuccess}
	uc.logger.Infof("[%s] Starting backup for %s", db, today)

	artifact, err := uc.dump(ctx, today)
	if err != nil {
		uc.logger.Errorf("[%s] Dump failed: %v", db, err)
		result.Status = domain.StatusDumpFailed
		result.Err = err
		uc.notify(ctx, FailureSubject(db, today), uc.failureBody(db, today, &result), &result)
		return result
	}
	result.Artifact = artifact
	uc.logger.Infof("[%s] Dump created: %s (%s)", db, artifact.Name, humanize.Bytes(uint64(artifact.Size)))

	if err := uc.upload(ctx, artifact, uc.cfg.Remote.DailyPath); err != nil {
		uc.logger.Errorf("[%s] Daily upload failed, keeping %s: %v", db, artifact.LocalPath, err)
		result.Status = domain.StatusUploadFailed
		result.Err = err
		uc.notify(ctx, FailureSubject(db, today), uc.failureBody(db, today, &result), &result)
		return result
	}
	uc.logger.Infof("[%s] Uploaded %s", db, path.Join(uc.cfg.Remote.DailyPath, artifact.Name))

	if today.Day == 1 {
		if err := uc.upload(ctx, artifact, uc.cfg.Remote.MonthlyPath); err != nil {
			uc.logger.Warnf("[%s] Monthly upload failed: %v", db, err)
			result.Warn(domain.StepUploadMonthly, err)
		} else {
			result.Monthly = true
			uc.logger.Infof("[%s] Uploaded monthly copy %s", db, path.Join(uc.cfg.Remote.MonthlyPath, artifact.Name))
		}
	}

	uc.prune(ctx, db, today, &result)

	body := uc.successBody(db, today, &result, uc.now().Sub(start))
	uc.notify(ctx, SuccessSubject(db, today), body, &result)

	uc.cleanup(db, artifact, &result)

	uc.logger.Infof("[%s] Backup completed in %s with %d warning(s)",
		db, uc.now().Sub(start).Round(time.Second), len(result.Warnings))

	return result
}

func (uc *Backup) dump(ctx context.Context, today civil.Date) (*domain.Artifact, error) {
	ctx, cancel := withTimeout(ctx, uc.cfg.Timeouts.Dump)
	defer cancel()

	artifact, err := uc.producer.Produce(ctx, today)
	if err != nil {
		var dumpErr *domain.DumpFailure
		if !errors.As(err, &dumpErr) {
			err = &domain.DumpFailure{Cause: err}
		}
		return nil, err
	}

	return artifact, nil
}

func (uc *Backup) upload(ctx context.Context, artifact *domain.Artifact, dir string) error {
	ctx, cancel := withTimeout(ctx, uc.cfg.Timeouts.Upload)
	defer cancel()

	if err := uc.store.Upload(ctx, artifact.LocalPath, dir); err != nil {
		return &domain.UploadFailure{Dir: dir, Cause: err}
	}

	return nil
}

// prune deletes expired copies of this database's dumps from the daily path.
// The monthly path is never pruned.
func (uc *Backup) prune(ctx context.Context, db string, today civil.Date, result *domain.RunResult) {
	dir := uc.cfg.Remote.DailyPath

	listCtx, cancel := withTimeout(ctx, uc.cfg.Timeouts.Remote)
	names, err := uc.store.List(listCtx, dir)
	cancel()
	if err != nil {
		err = &domain.ListFailure{Dir: dir, Cause: err}
		uc.logger.Warnf("[%s] Skipping prune: %v", db, err)
		result.Warn(domain.StepList, err)
		return
	}

	own := make([]string, 0, len(names))
	for _, name := range names {
		if domain.IsArtifactOf(db, name) {
			own = append(own, name)
		}
	}

	expired := make([]string, 0)
	for name := range SelectExpired(own, uc.cfg.App.RetentionDays, today) {
		expired = append(expired, name)
	}
	sort.Strings(expired)

	uc.logger.Infof("[%s] %d of %d copies in %s are past the %d day retention",
		db, len(expired), len(own), dir, uc.cfg.App.RetentionDays)

	for _, name := range expired {
		delCtx, cancel := withTimeout(ctx, uc.cfg.Timeouts.Remote)
		err := uc.store.Delete(delCtx, dir, name)
		cancel()

		switch {
		case err == nil:
			result.Pruned = append(result.Pruned, name)
			uc.logger.Infof("[%s] Deleted expired copy %s", db, name)
		case errors.Is(err, domain.ErrObjectNotFound):
			uc.logger.Warnf("[%s] Expired copy %s was already gone", db, name)
		default:
			err = &domain.DeleteFailure{Name: name, Cause: err}
			uc.logger.Warnf("[%s] %v", db, err)
			result.Warn(domain.StepDelete, err)
		}
	}
}

func (uc *Backup) notify(ctx context.Context, subject, body string, result *domain.RunResult) {
	ctx, cancel := withTimeout(ctx, uc.cfg.Timeouts.Notify)
	defer cancel()

	if err := uc.notifier.Send(ctx, uc.cfg.Notify.AdminEmail, subject, body); err != nil {
		err = &domain.NotifyFailure{Cause: err}
		uc.logger.Errorf("%v", err)
		result.Warn(domain.StepNotify, err)
		return
	}

	uc.logger.Infof("Sent %q to %s", subject, uc.cfg.Notify.AdminEmail)
}

func (uc *Backup) cleanup(db string, artifact *domain.Artifact, result *domain.RunResult) {
	if err := uc.fs.Remove(artifact.LocalPath); err != nil {
		err = &domain.CleanupFailure{Path: artifact.LocalPath, Cause: err}
		uc.logger.Warnf("[%s] %v", db, err)
		result.Warn(domain.StepCleanup, err)
		return
	}

	uc.logger.Infof("[%s] Removed local copy %s", db, artifact.LocalPath)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
