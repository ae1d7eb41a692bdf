// Package dbsql provides the PostgreSQL connection and embedded-migration
// utilities every durable-store component builds on, adapted from the
// teacher's pkg/database package. Unlike the teacher, there is no generated
// ent client available in this tree (see DESIGN.md), so Client wraps a bare
// *sql.DB and callers write SQL directly.
package dbsql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Client wraps the pooled *sql.DB connection used by every durable-store
// implementation.
type Client struct {
	db *sql.DB
}

// DB returns the underlying connection for queries and health checks.
func (c *Client) DB() *sql.DB { return c.db }

// Close closes the underlying connection pool.
func (c *Client) Close() error { return c.db.Close() }

// NewClientFromDB wraps an already-open *sql.DB, useful for tests that
// construct their own testcontainers-backed connection.
func NewClientFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// NewClient opens a pooled connection via the pgx stdlib driver and applies
// pending embedded migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn := DSN(cfg)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, cfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Client{db: db}, nil
}

// DSN builds the libpq-style connection string NewClient and any
// dedicated-connection caller (e.g. internal/events' NOTIFY listener,
// which needs a raw pgx.Conn rather than a pooled *sql.DB) use to reach the
// same database.
func DSN(cfg Config) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

// Health reports whether the connection is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// runMigrations applies all embedded migration files via golang-migrate.
func runMigrations(db *sql.DB, cfg Config) error {
	return RunMigrations(db, cfg.Database)
}

// RunMigrations applies all embedded migration files against an
// already-open db, identifying the migrate instance by instanceName (purely
// a label golang-migrate uses internally — it does not select a database).
// Exported so tests that open their own connection against a testcontainer
// or a per-test schema's search_path can apply the same embedded migrations
// NewClient runs in production, without duplicating the golang-migrate
// wiring.
func RunMigrations(db *sql.DB, instanceName string) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return fmt.Errorf("no embedded migration files found — binary built incorrectly")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, instanceName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Close only the source driver. Calling m.Close() here would also close
	// the postgres driver, which closes the shared *sql.DB we still need.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}

	return nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && len(entry.Name()) > 4 && entry.Name()[len(entry.Name())-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}
