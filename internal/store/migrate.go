package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration represents a single schema migration
type Migration struct {
	Version   int64
	Name      string
	Up        string
	Down      string
	Applied   bool
	AppliedAt time.Time
}

// LoadMigrations reads migrations named <version>_<name>.up.sql and
// <version>_<name>.down.sql from fsys, sorted by version
func LoadMigrations(fsys fs.FS) ([]*Migration, error) {
	entries, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int64]*Migration)
	for _, file := range entries {
		base := path.Base(file)
		var direction string
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			direction = "up"
		case strings.HasSuffix(base, ".down.sql"):
			direction = "down"
		default:
			continue
		}

		stem := strings.TrimSuffix(base, "."+direction+".sql")
		versionStr, name, ok := strings.Cut(stem, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: expected <version>_<name>", base)
		}
		version, err := strconv.ParseInt(versionStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %s: invalid version: %w", base, err)
		}

		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if direction == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	migrations := make([]*Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %d_%s has no up script", m.Version, m.Name)
		}
		migrations = append(migrations, m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrator applies the embedded schema migrations and tracks them in
// schema_migrations
type Migrator struct {
	db         *sql.DB
	migrations []*Migration
}

// NewMigrator creates a migrator over the embedded migrations
func NewMigrator(db *sql.DB) (*Migrator, error) {
	migrations, err := LoadMigrations(migrationFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return &Migrator{db: db, migrations: migrations}, nil
}

// Initialize ensures the schema_migrations table exists
func (m *Migrator) Initialize(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	return nil
}

// applied returns applied_at by version
func (m *Migrator) applied(ctx context.Context) (map[int64]time.Time, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]time.Time)
	for rows.Next() {
		var (
			version int64
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		applied[version] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return applied, nil
}

// Status returns every known migration with its applied state
func (m *Migrator) Status(ctx context.Context) ([]*Migration, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Migration, len(m.migrations))
	for i, mig := range m.migrations {
		cp := *mig
		cp.AppliedAt, cp.Applied = applied[mig.Version]
		out[i] = &cp
	}
	return out, nil
}

// Up applies every pending migration, each in its own transaction, and
// returns the ones applied
func (m *Migrator) Up(ctx context.Context) ([]*Migration, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	var done []*Migration
	for _, mig := range status {
		if mig.Applied {
			continue
		}
		err := WithTx(ctx, m.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("migration %d_%s failed: %w", mig.Version, mig.Name, err)
		}
		done = append(done, mig)
	}
	return done, nil
}

// Down rolls back the most recently applied migration. It returns nil when
// nothing is applied.
func (m *Migrator) Down(ctx context.Context) (*Migration, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	var last *Migration
	for _, mig := range status {
		if mig.Applied {
			last = mig
		}
	}
	if last == nil {
		return nil, nil
	}
	if last.Down == "" {
		return nil, fmt.Errorf("migration %d_%s has no down script", last.Version, last.Name)
	}

	err = WithTx(ctx, m.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, last.Down); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", last.Version)
		if err != nil {
			return err
		}
		return checkAffected(res)
	})
	if err != nil {
		return nil, fmt.Errorf("rollback %d_%s failed: %w", last.Version, last.Name, err)
	}
	return last, nil
}
