package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/lib/pq"
	"github.com/semmidev/pgvault/internal/config"
	"github.com/semmidev/pgvault/internal/domain"
	"github.com/spf13/afero"
)

const (
	dumpCmd    = "pg_dump"
	restoreCmd = "pg_restore"

	maintenanceDB = "postgres"
)

type PostgreSQLDatabase struct {
	config  *config.DatabaseConfig
	workDir string
	fs      afero.Fs
	runner  CommandRunner
	logger  domain.Logger

	// swapped in tests, both talk to the server through lib/pq
	ping     func(ctx context.Context) error
	recreate func(ctx context.Context) error
}

func NewPostgreSQL(cfg *config.DatabaseConfig, workDir string, logger domain.Logger) *PostgreSQLDatabase {
	p := &PostgreSQLDatabase{
		config:  cfg,
		workDir: workDir,
		fs:      afero.NewOsFs(),
		runner:  NewExecutor(logger),
		logger:  logger,
	}
	p.ping = p.Ping
	p.recreate = p.recreateDatabase
	return p
}

func (p *PostgreSQLDatabase) GetName() string {
	return p.config.Name
}

// Produce dumps the database in pg_dump's custom archive format to <workDir>/<db>_<date>.pgdump.
// An existing file at that path is overwritten.
func (p *PostgreSQLDatabase) Produce(ctx context.Context, today civil.Date) (*domain.Artifact, error) {
	name := domain.ArtifactName(p.config.Name, today)
	outputPath := filepath.Join(p.workDir, name)

	if err := p.fs.MkdirAll(p.workDir, 0750); err != nil {
		return nil, &domain.DumpFailure{Cause: fmt.Errorf("create work dir: %w", err)}
	}

	if err := p.ping(ctx); err != nil {
		return nil, &domain.DumpFailure{Cause: err}
	}

	out, err := p.runner.Run(ctx, dumpCmd, p.env(), p.dumpArgs(outputPath)...)
	if err != nil {
		return nil, &domain.DumpFailure{Cause: fmt.Errorf("pg_dump failed: %w, output: %s", err, out)}
	}

	info, err := p.fs.Stat(outputPath)
	if err != nil {
		return nil, &domain.DumpFailure{Cause: fmt.Errorf("dump file was not created: %w", err)}
	}

	return &domain.Artifact{
		Name:      name,
		Date:      today,
		LocalPath: outputPath,
		Size:      info.Size(),
	}, nil
}

func (p *PostgreSQLDatabase) dumpArgs(outputPath string) []string {
	return []string{
		fmt.Sprintf("--host=%s", p.config.Host),
		fmt.Sprintf("--port=%d", p.config.Port),
		fmt.Sprintf("--username=%s", p.config.User),
		"--no-password",
		"--format=custom",
		fmt.Sprintf("--file=%s", outputPath),
		p.config.Name,
	}
}

// Restore replaces the database with the contents of a custom-format dump.
// Other sessions are terminated and the database is dropped and recreated first.
func (p *PostgreSQLDatabase) Restore(ctx context.Context, localPath string) error {
	if _, err := p.fs.Stat(localPath); err != nil {
		return fmt.Errorf("restore file not present: %w", err)
	}

	if err := p.recreate(ctx); err != nil {
		return err
	}

	out, err := p.runner.Run(ctx, restoreCmd, p.env(), p.restoreArgs(localPath)...)
	if err != nil {
		return fmt.Errorf("pg_restore failed: %w, output: %s", err, out)
	}

	p.logger.Infof("[%s] Restored from %s", p.config.Name, filepath.Base(localPath))
	return nil
}

func (p *PostgreSQLDatabase) restoreArgs(localPath string) []string {
	return []string{
		fmt.Sprintf("--host=%s", p.config.Host),
		fmt.Sprintf("--port=%d", p.config.Port),
		fmt.Sprintf("--username=%s", p.config.User),
		"--no-password",
		"--clean",
		"--if-exists",
		"--no-owner",
		fmt.Sprintf("--dbname=%s", p.config.Name),
		localPath,
	}
}

// env passes what the command line cannot carry to pg_dump and pg_restore.
func (p *PostgreSQLDatabase) env() []string {
	var env []string
	if p.config.Password != "" {
		env = append(env, "PGPASSWORD="+p.config.Password)
	}
	if p.config.SSLMode != "" {
		env = append(env, "PGSSLMODE="+p.config.SSLMode)
	}
	return env
}

// Ping opens a connection to the target database and verifies it answers.
func (p *PostgreSQLDatabase) Ping(ctx context.Context) error {
	db, err := sql.Open("postgres", p.dsn(p.config.Name))
	if err != nil {
		return fmt.Errorf("unable to open postgres connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgresql ping failed: %w", err)
	}

	return nil
}

func (p *PostgreSQLDatabase) recreateDatabase(ctx context.Context) error {
	db, err := sql.Open("postgres", p.dsn(maintenanceDB))
	if err != nil {
		return fmt.Errorf("unable to open postgres connection: %w", err)
	}
	defer db.Close()

	res, err := db.ExecContext(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
		p.config.Name,
	)
	if err != nil {
		return fmt.Errorf("terminate connections: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		p.logger.Warnf("[%s] Terminated %d open connection(s)", p.config.Name, n)
	}

	ident := pq.QuoteIdentifier(p.config.Name)

	if _, err := db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+ident); err != nil {
		return fmt.Errorf("drop database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+ident); err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	p.logger.Infof("[%s] Dropped and recreated database", p.config.Name)
	return nil
}

func (p *PostgreSQLDatabase) dsn(dbname string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.config.Host, strconv.Itoa(p.config.Port)),
		Path:   "/" + dbname,
	}
	if p.config.Password != "" {
		u.User = url.UserPassword(p.config.User, p.config.Password)
	} else {
		u.User = url.User(p.config.User)
	}

	q := url.Values{}
	if p.config.SSLMode != "" {
		q.Set("sslmode", p.config.SSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
