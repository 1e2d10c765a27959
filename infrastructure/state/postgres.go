package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const snapshotsSchema = `
CREATE TABLE IF NOT EXISTS engine_snapshots (
	key        TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresBackend is a durable PersistenceBackend storing binary-encoded
// engine snapshots (engine.EncodeEngineState output) under an arbitrary
// string key, one row per key.
type PostgresBackend struct {
	db *sqlx.DB
}

// NewPostgresBackend opens a connection pool against dsn and ensures the
// snapshots table exists. Schema is otherwise expected to be managed by
// golang-migrate against migrationsPath; pass "" to skip running migrations
// and rely on the inline CREATE TABLE IF NOT EXISTS instead (for
// connections such as go-sqlmock that cannot honor a migration source).
func NewPostgresBackend(ctx context.Context, dsn, migrationsPath string) (*PostgresBackend, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: connect postgres: %w", err)
	}
	return newPostgresBackend(ctx, db, migrationsPath)
}

// newPostgresBackendFromDB wraps an already-open *sqlx.DB, such as a
// go-sqlmock-backed connection, without touching the schema. Nothing in
// this repository calls it.
func newPostgresBackendFromDB(db *sqlx.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func newPostgresBackend(ctx context.Context, db *sqlx.DB, migrationsPath string) (*PostgresBackend, error) {
	if migrationsPath != "" {
		if err := runMigrations(db.DB, migrationsPath); err != nil {
			db.Close()
			return nil, err
		}
	} else if _, err := db.ExecContext(ctx, snapshotsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ensure schema: %w", err)
	}
	return &PostgresBackend{db: db}, nil
}

func runMigrations(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("state: migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("state: load migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("state: run migrations: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Save(ctx context.Context, key string, data []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO engine_snapshots (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, key, data)
	if err != nil {
		return fmt.Errorf("state: save %q: %w", key, err)
	}
	return nil
}

func (p *PostgresBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.db.GetContext(ctx, &data, `SELECT data FROM engine_snapshots WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state: load %q: %w", key, err)
	}
	return data, nil
}

func (p *PostgresBackend) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM engine_snapshots WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("state: delete %q: %w", key, err)
	}
	return nil
}

func (p *PostgresBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := p.db.SelectContext(ctx, &keys, `SELECT key FROM engine_snapshots WHERE key LIKE $1 ORDER BY key`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("state: list %q: %w", prefix, err)
	}
	return keys, nil
}

func (p *PostgresBackend) Close(ctx context.Context) error {
	return p.db.Close()
}
