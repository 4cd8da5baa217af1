package store

import (
	"context"
	"fmt"

	"github.com/buildplan/buildplan/internal/domain"
)

// UserStore persists user accounts
type UserStore struct {
	db DBTX
}

// NewUserStore creates a user store
func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, phone, company, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Phone, &u.Company, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts u, assigning its ID and timestamps
func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	u.ID = newID()
	err := s.db.QueryRowContext(ctx, `
INSERT INTO users (id, email, password_hash, first_name, last_name, phone, company)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, u.Company,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", ConvertDBError(err))
	}
	return nil
}

// GetByID returns the user with id
func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", ConvertDBError(err))
	}
	return u, nil
}

// GetByEmail returns the user with the normalized email
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", ConvertDBError(err))
	}
	return u, nil
}

// UpdateProfile writes the editable profile fields of user id
func (s *UserStore) UpdateProfile(ctx context.Context, id string, p domain.Profile) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
UPDATE users
SET first_name = $2, last_name = $3, phone = $4, company = $5, updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns,
		id, p.FirstName, p.LastName, p.Phone, p.Company))
	if err != nil {
		return nil, fmt.Errorf("update user: %w", ConvertDBError(err))
	}
	return u, nil
}
