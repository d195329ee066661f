package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/domain"
	"github.com/semmidev/pgvault/internal/infrastructure/logger"
	"github.com/spf13/afero"
)

const workDir = "/var/lib/pgvault"

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			WorkDir:       workDir,
			RetentionDays: 7,
		},
		Database: config.DatabaseConfig{Name: "app", Host: "localhost", Port: 5432, User: "backup"},
		Remote: config.RemoteConfig{
			Backend:     "local",
			DailyPath:   "dbBackups",
			MonthlyPath: "dbBackups/monthly",
		},
		Notify: config.NotifyConfig{AdminEmail: "dba@example.com"},
	}
}

type fakeProducer struct {
	fs      afero.Fs
	content string
	err     error
	block   bool
	calls   int
}

func (p *fakeProducer) GetName() string { return "app" }

func (p *fakeProducer) Produce(ctx context.Context, today civil.Date) (*domain.Artifact, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return nil, &domain.DumpFailure{Cause: ctx.Err()}
	}
	if p.err != nil {
		return nil, p.err
	}

	name := domain.ArtifactName("app", today)
	localPath := filepath.Join(workDir, name)
	if err := afero.WriteFile(p.fs, localPath, []byte(p.content), 0600); err != nil {
		return nil, err
	}

	return &domain.Artifact{Name: name, Date: today, LocalPath: localPath, Size: int64(len(p.content))}, nil
}

// memStore keeps objects per directory and reads uploads from the shared afero fs.
type memStore struct {
	fs      afero.Fs
	objects map[string]map[string]string

	uploadErr map[string]error
	listErr   error
	deleteErr map[string]error
	// downloadErr fails Download after a partial write
	downloadErr error
	// vanish removes the object just before Delete looks for it
	vanish map[string]bool

	uploads []string
	deletes []string
	lists   int
}

func newMemStore(fs afero.Fs) *memStore {
	return &memStore{
		fs:        fs,
		objects:   map[string]map[string]string{},
		uploadErr: map[string]error{},
		deleteErr: map[string]error{},
		vanish:    map[string]bool{},
	}
}

func (m *memStore) put(dir, name, content string) {
	if m.objects[dir] == nil {
		m.objects[dir] = map[string]string{}
	}
	m.objects[dir][name] = content
}

func (m *memStore) Upload(_ context.Context, localPath string, dir string) error {
	m.uploads = append(m.uploads, dir)
	if err := m.uploadErr[dir]; err != nil {
		return err
	}
	content, err := afero.ReadFile(m.fs, localPath)
	if err != nil {
		return err
	}
	m.put(dir, filepath.Base(localPath), string(content))
	return nil
}

func (m *memStore) List(_ context.Context, dir string) ([]string, error) {
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	names := []string{}
	for name := range m.objects[dir] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memStore) Delete(_ context.Context, dir string, name string) error {
	m.deletes = append(m.deletes, name)
	if m.vanish[name] {
		delete(m.objects[dir], name)
	}
	if err := m.deleteErr[name]; err != nil {
		return err
	}
	if _, ok := m.objects[dir][name]; !ok {
		return fmt.Errorf("%s/%s: %w", dir, name, domain.ErrObjectNotFound)
	}
	delete(m.objects[dir], name)
	return nil
}

func (m *memStore) Download(_ context.Context, dir string, name string, localPath string) error {
	content, ok := m.objects[dir][name]
	if !ok {
		return fmt.Errorf("%s/%s: %w", dir, name, domain.ErrObjectNotFound)
	}
	if m.downloadErr != nil {
		half := content[:len(content)/2]
		if err := afero.WriteFile(m.fs, localPath, []byte(half), 0600); err != nil {
			return err
		}
		return m.downloadErr
	}
	return afero.WriteFile(m.fs, localPath, []byte(content), 0600)
}

type sentMessage struct {
	recipient string
	subject   string
	body      string
}

type fakeNotifier struct {
	err  error
	sent []sentMessage
}

func (n *fakeNotifier) Send(_ context.Context, recipient, subject, body string) error {
	n.sent = append(n.sent, sentMessage{recipient: recipient, subject: subject, body: body})
	return n.err
}

type fixture struct {
	fs       afero.Fs
	cfg      *config.Config
	producer *fakeProducer
	store    *memStore
	notifier *fakeNotifier
	backup   *Backup
}

func newFixture(today civil.Date) *fixture {
	fs := afero.NewMemMapFs()
	f := &fixture{
		fs:       fs,
		cfg:      testConfig(),
		producer: &fakeProducer{fs: fs, content: "PGDMP run 1"},
		store:    newMemStore(fs),
		notifier: &fakeNotifier{},
	}
	f.backup = NewBackup(f.producer, f.store, f.notifier, logger.Nop(), f.cfg)
	f.backup.fs = fs
	f.backup.now = func() time.Time {
		return today.In(time.Local).Add(2 * time.Hour)
	}
	return f
}
