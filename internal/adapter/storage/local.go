package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/semmidev/pgvault/internal/domain"
	"github.com/spf13/afero"
)

// LocalStorage keeps remote paths as directories below basePath, e.g. on a mounted share.
type LocalStorage struct {
	fs       afero.Fs
	basePath string
}

func NewLocal(fs afero.Fs, basePath string) (*LocalStorage, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{fs: fs, basePath: basePath}, nil
}

func (l *LocalStorage) Upload(_ context.Context, localPath string, dir string) error {
	destDir := l.GetPath(dir)
	if err := l.fs.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create dest dir: %w", err)
	}

	source, err := l.fs.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	// write next to the target and rename so readers never see a partial object
	destPath := filepath.Join(destDir, filepath.Base(localPath))
	tmpPath := destPath + ".partial"

	dest, err := l.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}

	if _, err := io.Copy(dest, source); err != nil {
		_ = dest.Close()
		_ = l.fs.Remove(tmpPath)
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := dest.Close(); err != nil {
		_ = l.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close dest: %w", err)
	}

	if err := l.fs.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move into place: %w", err)
	}

	return nil
}

func (l *LocalStorage) List(_ context.Context, dir string) ([]string, error) {
	entries, err := afero.ReadDir(l.fs, l.GetPath(dir))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}

	return files, nil
}

func (l *LocalStorage) Delete(_ context.Context, dir string, name string) error {
	filePath := filepath.Join(l.GetPath(dir), name)
	if err := l.fs.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete file %s: %w", name, domain.ErrObjectNotFound)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (l *LocalStorage) Download(_ context.Context, dir string, name string, localPath string) error {
	source, err := l.fs.Open(filepath.Join(l.GetPath(dir), name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to open %s: %w", name, domain.ErrObjectNotFound)
		}
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	if err := l.fs.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}

	dest, err := l.fs.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, source); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}

	return nil
}

func (l *LocalStorage) GetPath(dir string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(dir))
}
