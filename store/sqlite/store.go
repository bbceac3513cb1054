// Package sqlite provides a Store backed by a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/store"
	"github.com/xraph/paysim/store/sqlmigrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using database/sql on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New wraps an open database. logger may be nil.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Open opens the SQLite database at path. SQLite serializes writers, so the
// pool is limited to one connection, which also keeps ":memory:" databases
// shared across calls.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("paysim/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return New(db, logger), nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies every pending migration.
func (s *Store) Migrate(ctx context.Context) error {
	return s.MigrateDirection(ctx, sqlmigrate.Up, 0)
}

// MigrateDirection runs migrations up or down (see sqlmigrate.Run).
func (s *Store) MigrateDirection(_ context.Context, dir sqlmigrate.Direction, steps int) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("paysim/sqlite: migration source: %w", err)
	}
	drv, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{
		MigrationsTable: "paysim_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("paysim/sqlite: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("paysim/sqlite: create migrator: %w", err)
	}
	// m.Close would close s.db through the driver; only the source is released.
	defer src.Close()

	return sqlmigrate.Run(m, dir, steps, s.logger)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (object.Object, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM paysim_objects WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("paysim/sqlite: get %s: %w", key, err)
	}
	return object.DecodeKey(key, []byte(raw))
}

func (s *Store) Set(ctx context.Context, o object.Object) error {
	raw, err := object.Encode(o)
	if err != nil {
		return err
	}

	key := object.KeyOf(o)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO paysim_objects (key, kind, value) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value`,
		key, string(o.ObjectKind()), string(raw))
	if err != nil {
		return fmt.Errorf("paysim/sqlite: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM paysim_objects WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("paysim/sqlite: delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("paysim/sqlite: delete %s: %w", key, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Items(ctx context.Context, prefix string) ([]store.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM paysim_objects WHERE substr(key, 1, ?) = ? ORDER BY key`,
		utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("paysim/sqlite: scan %q: %w", prefix, err)
	}
	defer rows.Close()

	var items []store.Item
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("paysim/sqlite: scan row: %w", err)
		}
		it, err := store.DecodeItem(key, []byte(raw))
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("paysim/sqlite: scan %q: %w", prefix, err)
	}
	return items, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM paysim_objects`); err != nil {
		return fmt.Errorf("paysim/sqlite: clear: %w", err)
	}
	return nil
}
