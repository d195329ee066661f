package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/semmidev/pgvault/internal/adapter/database"
	"github.com/semmidev/pgvault/internal/adapter/notifier"
	"github.com/semmidev/pgvault/internal/adapter/storage"
	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/domain"
	"github.com/semmidev/pgvault/internal/infrastructure/logger"
	"github.com/semmidev/pgvault/internal/infrastructure/metrics"
	"github.com/semmidev/pgvault/internal/infrastructure/scheduler"
	"github.com/semmidev/pgvault/internal/usecase"
)

type App struct {
	config   *config.Config
	logger   *logger.Logger
	notifier domain.Notifier
	metrics  *metrics.Metrics

	store    domain.Storage
	storeLog *runLogger

	// overridable in tests
	newStore func(ctx context.Context, log domain.Logger) (domain.Storage, error)
	newDB    func(log domain.Logger) dumpRestorer
}

type dumpRestorer interface {
	domain.DumpProducer
	domain.Restorer
}

func New(cfg *config.Config) (*App, error) {
	// stdout only; the day's log file belongs to the run that writes it
	log, err := logger.New(cfg.App.LogLevel, "")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &App{
		config:   cfg,
		logger:   log,
		notifier: notifier.New(&cfg.Notify),
		metrics:  metrics.New(),
		storeLog: &runLogger{fallback: log},
	}
	a.newStore = func(ctx context.Context, log domain.Logger) (domain.Storage, error) {
		return storage.New(ctx, &cfg.Remote, log)
	}
	a.newDB = func(log domain.Logger) dumpRestorer {
		return database.NewPostgreSQL(&cfg.Database, cfg.App.WorkDir, log)
	}

	return a, nil
}

// storage connects the remote backend on first use and keeps it on success.
func (a *App) storage(ctx context.Context) (domain.Storage, error) {
	if a.store != nil {
		return a.store, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.remoteTimeout())
	defer cancel()

	store, err := a.newStore(ctx, a.storeLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", a.config.Remote.Backend, err)
	}
	a.storeLog.Infof("Remote storage: %s (daily %s, monthly %s)",
		a.config.Remote.Backend, a.config.Remote.DailyPath, a.config.Remote.MonthlyPath)

	a.store = store
	return store, nil
}

func (a *App) remoteTimeout() time.Duration {
	if a.config.Timeouts.Remote > 0 {
		return a.config.Timeouts.Remote
	}
	return 2 * time.Minute
}

// RunOnce performs a single backup. Each run logs into the file of its own day.
func (a *App) RunOnce(ctx context.Context) domain.RunResult {
	start := time.Now()
	today := civil.DateOf(start)

	runLog, err := logger.New(a.config.App.LogLevel, a.config.LogFile(today.String()))
	if err != nil {
		a.logger.Warnf("Logging this run to stdout only: %v", err)
		runLog = a.logger
	} else {
		defer runLog.Close()
	}
	a.storeLog.use(runLog)
	defer a.storeLog.use(nil)

	var result domain.RunResult
	store, err := a.storage(ctx)
	if err != nil {
		result = a.configFailure(ctx, runLog, today, err)
	} else {
		uc := usecase.NewBackup(a.newDB(runLog), store, a.notifier, runLog, a.config)
		result = uc.Execute(ctx)
	}

	a.metrics.Record(result, time.Now(), time.Since(start))
	if path := a.config.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			runLog.Warnf("%v", err)
		}
	}

	return result
}

func (a *App) configFailure(ctx context.Context, log *logger.Logger, today civil.Date, err error) domain.RunResult {
	log.Errorf("Backup cannot start: %v", err)

	result := domain.RunResult{Status: domain.StatusConfigFailed, Err: err}

	if d := a.config.Timeouts.Notify; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	subject := usecase.FailureSubject(a.config.Database.Name, today)
	body := fmt.Sprintf("Backup of %s could not start on %s.\n\nError: %v\n", a.config.Database.Name, today, err)
	if err := a.notifier.Send(ctx, a.config.Notify.AdminEmail, subject, body); err != nil {
		err = &domain.NotifyFailure{Cause: err}
		log.Errorf("%v", err)
		result.Warn(domain.StepNotify, err)
	}

	return result
}

func (a *App) List(ctx context.Context, monthly bool) ([]usecase.RemoteArtifact, error) {
	store, err := a.storage(ctx)
	if err != nil {
		return nil, err
	}
	return usecase.NewCatalog(store, a.config).Execute(ctx, monthly)
}

func (a *App) Restore(ctx context.Context, req usecase.RestoreRequest) error {
	store, err := a.storage(ctx)
	if err != nil {
		return err
	}
	return usecase.NewRestore(store, a.newDB(a.logger), a.logger, a.config).Execute(ctx, req)
}

// Schedule runs backups on the configured cron spec until ctx is done.
// A run in progress is allowed to finish before Schedule returns.
func (a *App) Schedule(ctx context.Context) error {
	sched := scheduler.New(a.logger.SugaredLogger)

	if err := sched.AddJob(a.config.App.Schedule, func(ctx context.Context) error {
		a.logger.Infof("=== Triggered scheduled backup for %s ===", a.config.Database.Name)
		result := a.RunOnce(ctx)
		if result.Failed() {
			return result.Err
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to schedule backup: %w", err)
	}

	if addr := a.config.Metrics.Listen; addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, addr, a.logger); err != nil {
				a.logger.Errorf("%v", err)
			}
		}()
	}

	sched.Start()
	a.logger.Infof("Scheduler started (%s), next run at %s", a.config.App.Schedule, sched.Next().Format(time.RFC3339))

	<-ctx.Done()

	a.logger.Infof("Stopping scheduler, waiting for a running backup to finish...")
	sched.Stop()
	return nil
}

func (a *App) Shutdown() {
	a.logger.Close()
}

// runLogger hands the long-lived store the log of the run in progress,
// and stdout between runs.
type runLogger struct {
	mu       sync.Mutex
	current  domain.Logger
	fallback domain.Logger
}

func (l *runLogger) use(log domain.Logger) {
	l.mu.Lock()
	l.current = log
	l.mu.Unlock()
}

func (l *runLogger) target() domain.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		return l.current
	}
	return l.fallback
}

func (l *runLogger) Infof(template string, args ...interface{}) {
	l.target().Infof(template, args...)
}

func (l *runLogger) Warnf(template string, args ...interface{}) {
	l.target().Warnf(template, args...)
}

func (l *runLogger) Errorf(template string, args ...interface{}) {
	l.target().Errorf(template, args...)
}
