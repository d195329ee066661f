package storage

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/semmidev/pgvault/internal/domain"
)

// RetryingStorage retries transient remote failures. A missing object is never retried.
type RetryingStorage struct {
	next     domain.Storage
	attempts uint
	delay    time.Duration
	logger   domain.Logger
}

func WithRetry(next domain.Storage, attempts uint, delay time.Duration, logger domain.Logger) *RetryingStorage {
	if attempts == 0 {
		attempts = 1
	}
	return &RetryingStorage{next: next, attempts: attempts, delay: delay, logger: logger}
}

func (r *RetryingStorage) options(ctx context.Context, op string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, domain.ErrObjectNotFound)
		}),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warnf("%s attempt %d failed: %v", op, n+1, err)
		}),
	}
}

func (r *RetryingStorage) Upload(ctx context.Context, localPath string, dir string) error {
	return retry.Do(func() error {
		return r.next.Upload(ctx, localPath, dir)
	}, r.options(ctx, "upload")...)
}

func (r *RetryingStorage) List(ctx context.Context, dir string) ([]string, error) {
	return retry.DoWithData(func() ([]string, error) {
		return r.next.List(ctx, dir)
	}, r.options(ctx, "list")...)
}

func (r *RetryingStorage) Delete(ctx context.Context, dir string, name string) error {
	return retry.Do(func() error {
		return r.next.Delete(ctx, dir, name)
	}, r.options(ctx, "delete")...)
}

func (r *RetryingStorage) Download(ctx context.Context, dir string, name string, localPath string) error {
	return retry.Do(func() error {
		return r.next.Download(ctx, dir, name, localPath)
	}, r.options(ctx, "download")...)
}
