package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// GDriveStorage maps slash separated remote paths onto nested Drive folders below rootID.
type GDriveStorage struct {
	service *drive.Service
	rootID  string

	// folder ids by walked path, cleared whenever Drive answers 404
	mu      sync.Mutex
	folders map[string]string
}

// NewGDrive authenticates either with a service account credentials file or
// with an OAuth client secret plus a refresh token obtained through gdrive-auth.
func NewGDrive(ctx context.Context, cfg *config.RemoteConfig) (*GDriveStorage, error) {
	var opt option.ClientOption

	switch {
	case cfg.GDriveCredentialsFile != "":
		opt = option.WithCredentialsFile(cfg.GDriveCredentialsFile)
	case cfg.GDriveClientSecretFile != "":
		oauthCfg, err := LoadDriveOAuthConfig(cfg.GDriveClientSecretFile)
		if err != nil {
			return nil, err
		}
		if cfg.GDriveRefreshToken == "" {
			return nil, fmt.Errorf("gdrive_refresh_token is required with a client secret, run gdrive-auth first")
		}
		ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken})
		opt = option.WithTokenSource(ts)
	default:
		return nil, fmt.Errorf("no google drive credentials configured")
	}

	service, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return newGDriveWithService(service, cfg.GDriveRootFolderID), nil
}

func newGDriveWithService(service *drive.Service, rootID string) *GDriveStorage {
	if rootID == "" {
		rootID = "root"
	}
	return &GDriveStorage{
		service: service,
		rootID:  rootID,
		folders: map[string]string{},
	}
}

// LoadDriveOAuthConfig parses a Google OAuth client secret JSON file for the drive.file scope.
func LoadDriveOAuthConfig(clientSecretPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return cfg, nil
}

// Upload stores the file in the folder for dir, creating missing folders.
// A file of the same name in that folder is updated in place.
func (g *GDriveStorage) Upload(ctx context.Context, localPath string, dir string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	folderID, err := g.folder(ctx, dir, true)
	if err != nil {
		return err
	}

	name := filepath.Base(localPath)
	existing, err := g.findFile(ctx, folderID, name)
	if err != nil {
		return err
	}

	if existing != "" {
		_, err = g.service.Files.Update(existing, &drive.File{}).
			Media(file).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to update %s on gdrive: %w", name, g.dropStale(err))
		}
		return nil
	}

	_, err = g.service.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{folderID},
	}).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", g.dropStale(err))
	}

	return nil
}

// List returns the names of non-folder files directly inside dir.
func (g *GDriveStorage) List(ctx context.Context, dir string) ([]string, error) {
	folderID, err := g.folder(ctx, dir, false)
	if err != nil {
		return nil, err
	}
	if folderID == "" {
		return []string{}, nil
	}

	query := fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed = false", escapeQuery(folderID), folderMimeType)

	files := []string{}
	err = g.service.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name)").
		Context(ctx).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				files = append(files, f.Name)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", g.dropStale(err))
	}

	return files, nil
}

func (g *GDriveStorage) Delete(ctx context.Context, dir string, name string) error {
	folderID, err := g.folder(ctx, dir, false)
	if err != nil {
		return err
	}
	if folderID == "" {
		return fmt.Errorf("folder %s: %w", dir, domain.ErrObjectNotFound)
	}

	id, err := g.findFile(ctx, folderID, name)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("file %s: %w", name, domain.ErrObjectNotFound)
	}

	if err := g.service.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete file: %w", g.dropStale(err))
	}

	return nil
}

func (g *GDriveStorage) Download(ctx context.Context, dir string, name string, localPath string) error {
	folderID, err := g.folder(ctx, dir, false)
	if err != nil {
		return err
	}
	if folderID == "" {
		return fmt.Errorf("folder %s: %w", dir, domain.ErrObjectNotFound)
	}

	id, err := g.findFile(ctx, folderID, name)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("file %s: %w", name, domain.ErrObjectNotFound)
	}

	resp, err := g.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("failed to download file: %w", g.dropStale(err))
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return out.Sync()
}

// folder resolves dir segment by segment. With create unset a missing folder yields "".
func (g *GDriveStorage) folder(ctx context.Context, dir string, create bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent := g.rootID
	walked := ""

	for _, segment := range splitPath(dir) {
		walked = walked + "/" + segment
		if id, ok := g.folders[walked]; ok {
			parent = id
			continue
		}

		query := fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false",
			escapeQuery(parent), escapeQuery(segment), folderMimeType)

		list, err := g.service.Files.List().
			Q(query).
			Fields("files(id)").
			PageSize(1).
			Context(ctx).
			Do()
		if err != nil {
			if isDriveNotFound(err) {
				clear(g.folders)
			}
			return "", fmt.Errorf("failed to look up folder %s: %w", walked, err)
		}

		var id string
		switch {
		case len(list.Files) > 0:
			id = list.Files[0].Id
		case create:
			created, err := g.service.Files.Create(&drive.File{
				Name:     segment,
				MimeType: folderMimeType,
				Parents:  []string{parent},
			}).
				Fields("id").
				Context(ctx).
				Do()
			if err != nil {
				if isDriveNotFound(err) {
					clear(g.folders)
				}
				return "", fmt.Errorf("failed to create folder %s: %w", walked, err)
			}
			id = created.Id
		default:
			return "", nil
		}

		g.folders[walked] = id
		parent = id
	}

	return parent, nil
}

func (g *GDriveStorage) findFile(ctx context.Context, folderID, name string) (string, error) {
	query := fmt.Sprintf("'%s' in parents and name = '%s' and mimeType != '%s' and trashed = false",
		escapeQuery(folderID), escapeQuery(name), folderMimeType)

	list, err := g.service.Files.List().
		Q(query).
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to find file: %w", g.dropStale(err))
	}

	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

// dropStale forgets every cached folder when err says an id no longer exists,
// so the next attempt resolves the path again.
func (g *GDriveStorage) dropStale(err error) error {
	if isDriveNotFound(err) {
		g.mu.Lock()
		clear(g.folders)
		g.mu.Unlock()
	}
	return err
}

func isDriveNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func splitPath(dir string) []string {
	var segments []string
	for _, s := range strings.Split(dir, "/") {
		if s != "" && s != "." {
			segments = append(segments, s)
		}
	}
	return segments
}

// escapeQuery quotes a value for use inside a single-quoted Drive query string.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
