// Package postgres is the durable pkg/store implementation: hand-written
// database/sql queries over jackc/pgx/v5, with golang-migrate/v4 embedded
// migrations, grounded on the teacher's pkg/database/client.go connection
// pool and migration-running shape (ent is dropped; queries are
// hand-written SQL instead of generated ent calls).
package postgres

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver for database/sql

	"github.com/csml-run/csml-engine/pkg/cerr"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds the connection and pool settings the driver reads from
// engine config / environment variables (spec.md §6 ENGINE_DB_TYPE and
// connection variables per backend).
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

// Client wraps the pooled *sql.DB and exposes a Store façade over it.
type Client struct {
	db *stdsql.DB
}

// DB returns the underlying connection pool, for health checks.
func (c *Client) DB() *stdsql.DB { return c.db }

// Ping verifies the connection pool is reachable, satisfying
// pkg/api.HealthChecker for the GET /health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the connection pool.
func (c *Client) Close() error { return c.db.Close() }

// NewClient opens a pooled connection, verifies it, and applies pending
// migrations before returning.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindStorage, err, "open database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, cerr.Wrap(cerr.KindStorage, err, "ping database")
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Client{db: db}, nil
}

// NewClientFromDB wraps an already-open pool (for tests using
// testcontainers-go, which manage connection lifecycle themselves).
// Migrations are not applied; call Migrate separately once the target
// database name is known.
func NewClientFromDB(db *stdsql.DB) *Client {
	return &Client{db: db}
}

// Migrate applies every pending embedded migration against the client's
// database, for callers (tests) that built the pool via NewClientFromDB.
func (c *Client) Migrate(database string) error {
	return runMigrations(c.db, database)
}

// runMigrations applies every pending embedded migration on startup, the
// same auto-apply-on-boot flow the teacher uses for its ent migrations.
func runMigrations(db *stdsql.DB, database string) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "check embedded migrations")
	}
	if !hasMigrations {
		return cerr.New(cerr.KindStorage, "no embedded migration files found")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "create postgres migration driver")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "create migration source")
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "create migrate instance")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return cerr.Wrap(cerr.KindStorage, err, "apply migrations")
	}

	// Close only the source driver. Calling m.Close() also closes the
	// database driver, which calls db.Close() on the shared *sql.DB passed
	// via postgres.WithInstance() — that would break the pool we return.
	if err := sourceDriver.Close(); err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "close migration source")
	}

	return nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && len(name) > 4 && name[len(name)-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}
