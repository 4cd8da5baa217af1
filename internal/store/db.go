package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// DBTX is satisfied by *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PoolConfig holds database connection pool configuration
type PoolConfig struct {
	// URL is the PostgreSQL connection string
	URL string

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns pool settings suited to a single API instance
func DefaultPoolConfig(url string) PoolConfig {
	return PoolConfig{
		URL:             url,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Open connects to PostgreSQL through the pgx driver and verifies the
// connection
func Open(ctx context.Context, cfg PoolConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url is required")
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	configurePool(db, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func configurePool(db *sql.DB, cfg PoolConfig) {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// WithTx runs fn in a transaction, committing on success and rolling back on
// error or panic
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListOptions narrows and pages a list query
type ListOptions struct {
	Limit  int
	Offset int
	// From and To bound created_at; zero values are unbounded, To is exclusive
	From time.Time
	To   time.Time
	// Search matches a case-insensitive substring
	Search string
	// Status filters on a status column where the list has one
	Status string
	// Sort lists sort keys, "-" prefixed for descending; unknown keys are
	// ignored
	Sort []string
}

// filter accumulates WHERE conditions with positional arguments
type filter struct {
	conds []string
	args  []interface{}
}

// add appends a condition; expr contains a single %d for the placeholder index
func (f *filter) add(expr string, arg interface{}) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(expr, len(f.args)))
}

// addRange adds created_at bounds for column
func (f *filter) addRange(column string, opts ListOptions) {
	if !opts.From.IsZero() {
		f.add(column+" >= $%d", opts.From)
	}
	if !opts.To.IsZero() {
		f.add(column+" < $%d", opts.To)
	}
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// page appends LIMIT and OFFSET placeholders and returns the clause
func (f *filter) page(opts ListOptions) string {
	f.args = append(f.args, opts.Limit, opts.Offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(f.args)-1, len(f.args))
}

// orderBy builds an ORDER BY clause from sort keys mapped through columns.
// The id column is always appended as a tiebreaker.
func orderBy(sort []string, columns map[string]string, def, id string) string {
	terms := make([]string, 0, len(sort)+1)
	for _, key := range sort {
		dir := "ASC"
		if strings.HasPrefix(key, "-") {
			dir = "DESC"
			key = key[1:]
		}
		if col, ok := columns[key]; ok {
			terms = append(terms, col+" "+dir)
		}
	}
	if len(terms) == 0 {
		terms = append(terms, def)
	}
	return " ORDER BY " + strings.Join(append(terms, id), ", ")
}

// likePattern escapes LIKE wildcards in s and wraps it for substring search
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// newID returns a random UUID string for new rows
var newID = func() string {
	return uuid.NewString()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
