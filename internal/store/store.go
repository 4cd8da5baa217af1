package store

import (
	"context"
	"database/sql"
)

// Store groups the repositories over one database handle
type Store struct {
	db        *sql.DB
	Users     *UserStore
	Contacts  *ContactStore
	Projects  *ProjectStore
	Estimates *EstimateStore
}

// New creates a store over db
func New(db *sql.DB) *Store {
	return &Store{
		db:        db,
		Users:     NewUserStore(db),
		Contacts:  NewContactStore(db),
		Projects:  NewProjectStore(db),
		Estimates: NewEstimateStore(db),
	}
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle
func (s *Store) Close() error {
	return s.db.Close()
}
