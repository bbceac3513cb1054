// Package postgres provides a Store backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/store"
	"github.com/xraph/paysim/store/sqlmigrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	dsn    string
	logger *slog.Logger
}

// Open connects to the database at dsn.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("paysim/postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("paysim/postgres: ping: %w", err)
	}
	return &Store{pool: pool, dsn: dsn, logger: logger}, nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies every pending migration.
func (s *Store) Migrate(ctx context.Context) error {
	return s.MigrateDirection(ctx, sqlmigrate.Up, 0)
}

// MigrateDirection runs migrations up or down on a dedicated database/sql
// connection, which golang-migrate closes when done.
func (s *Store) MigrateDirection(ctx context.Context, dir sqlmigrate.Direction, steps int) error {
	db, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return fmt.Errorf("paysim/postgres: open migration connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("paysim/postgres: ping migration connection: %w", err)
	}

	drv, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "paysim_schema_migrations",
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("paysim/postgres: migration driver: %w", err)
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		_ = drv.Close()
		return fmt.Errorf("paysim/postgres: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		_ = drv.Close()
		return fmt.Errorf("paysim/postgres: create migrator: %w", err)
	}
	defer m.Close()

	return sqlmigrate.Run(m, dir, steps, s.logger)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (object.Object, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM paysim_objects WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("paysim/postgres: get %s: %w", key, err)
	}
	return object.DecodeKey(key, raw)
}

func (s *Store) Set(ctx context.Context, o object.Object) error {
	raw, err := object.Encode(o)
	if err != nil {
		return err
	}

	key := object.KeyOf(o)
	_, err = s.pool.Exec(ctx, `
INSERT INTO paysim_objects (key, kind, value) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET kind = EXCLUDED.kind, value = EXCLUDED.value`,
		key, string(o.ObjectKind()), raw)
	if err != nil {
		return fmt.Errorf("paysim/postgres: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM paysim_objects WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("paysim/postgres: delete %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Items(ctx context.Context, prefix string) ([]store.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM paysim_objects WHERE starts_with(key, $1) ORDER BY key COLLATE "C"`,
		prefix)
	if err != nil {
		return nil, fmt.Errorf("paysim/postgres: scan %q: %w", prefix, err)
	}
	defer rows.Close()

	var items []store.Item
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("paysim/postgres: scan row: %w", err)
		}
		it, err := store.DecodeItem(key, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("paysim/postgres: scan %q: %w", prefix, err)
	}
	return items, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM paysim_objects`); err != nil {
		return fmt.Errorf("paysim/postgres: clear: %w", err)
	}
	return nil
}
