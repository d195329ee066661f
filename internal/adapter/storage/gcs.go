package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/domain"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCSStorage struct {
	client *gcs.Client
	bucket string
}

func NewGCS(ctx context.Context, cfg *config.RemoteConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	return &GCSStorage{client: client, bucket: cfg.GCSBucket}, nil
}

func (g *GCSStorage) Upload(ctx context.Context, localPath string, dir string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	key := objectKey(dir, filepath.Base(localPath))

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload to gcs: %w", err)
	}
	// the object only becomes visible once Close succeeds
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gcs upload: %w", err)
	}

	return nil
}

func (g *GCSStorage) List(ctx context.Context, dir string) ([]string, error) {
	prefix := dirPrefix(dir)

	it := g.client.Bucket(g.bucket).Objects(ctx, &gcs.Query{
		Prefix:    prefix,
		Delimiter: "/",
	})

	files := []string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gcs objects: %w", err)
		}
		// synthetic directory entries only carry a Prefix
		if attrs.Name == "" {
			continue
		}
		if name := strings.TrimPrefix(attrs.Name, prefix); name != "" {
			files = append(files, name)
		}
	}

	return files, nil
}

func (g *GCSStorage) Delete(ctx context.Context, dir string, name string) error {
	key := objectKey(dir, name)

	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, domain.ErrObjectNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete from gcs: %w", err)
	}

	return nil
}

func (g *GCSStorage) Download(ctx context.Context, dir string, name string, localPath string) error {
	key := objectKey(dir, name)

	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to download %s: %w", key, domain.ErrObjectNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to open gcs object: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("failed to download from gcs: %w", err)
	}

	return nil
}

func (g *GCSStorage) Close() error {
	return g.client.Close()
}
