// Package sqlmigrate drives golang-migrate for the SQL store backends.
package sqlmigrate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
)

// Direction selects which way Run migrates.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ErrDirection is returned for a direction other than Up or Down.
var ErrDirection = errors.New("sqlmigrate: invalid direction")

// Run migrates m in direction. steps > 0 limits the number of migrations
// applied; zero means all the way up, or one step down. A dirty schema is
// forced back to its recorded version before migrating.
func Run(m *migrate.Migrate, dir Direction, steps int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("sqlmigrate: read version: %w", err)
	}
	if dirty {
		logger.Warn("schema is dirty, forcing version", "version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("sqlmigrate: force version %d: %w", version, err)
		}
	}

	switch dir {
	case Up:
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case Down:
		if steps <= 0 {
			steps = 1
		}
		err = m.Steps(-steps)
	default:
		return fmt.Errorf("%w: %q", ErrDirection, dir)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlmigrate: migrate %s: %w", dir, err)
	}

	final, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("sqlmigrate: read version: %w", err)
	}
	logger.Debug("schema migrated", "direction", dir, "from", version, "to", final)
	return nil
}
