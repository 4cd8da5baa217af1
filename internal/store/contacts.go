package store

import (
	"context"
	"fmt"

	"github.com/buildplan/buildplan/internal/domain"
)

// ContactStore persists each user's address book
type ContactStore struct {
	db DBTX
}

// NewContactStore creates a contact store
func NewContactStore(db DBTX) *ContactStore {
	return &ContactStore{db: db}
}

// contactSort maps sort keys to columns
var contactSort = map[string]string{
	"name":       "name",
	"company":    "company",
	"created_at": "created_at",
}

const contactColumns = `id, user_id, name, email, phone, company, role, notes, created_at, updated_at`

func scanContact(row rowScanner) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.Company,
		&c.Role, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a contact owned by userID
func (s *ContactStore) Create(ctx context.Context, userID string, in domain.ContactInput) (*domain.Contact, error) {
	c, err := scanContact(s.db.QueryRowContext(ctx, `
INSERT INTO contacts (id, user_id, name, email, phone, company, role, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+contactColumns,
		newID(), userID, in.Name, in.Email, in.Phone, in.Company, in.Role, in.Notes))
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", ConvertDBError(err))
	}
	return c, nil
}

// Get returns contact id if it belongs to userID
func (s *ContactStore) Get(ctx context.Context, userID, id string) (*domain.Contact, error) {
	c, err := scanContact(s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", ConvertDBError(err))
	}
	return c, nil
}

// Update replaces the fields of contact id if it belongs to userID
func (s *ContactStore) Update(ctx context.Context, userID, id string, in domain.ContactInput) (*domain.Contact, error) {
	c, err := scanContact(s.db.QueryRowContext(ctx, `
UPDATE contacts
SET name = $3, email = $4, phone = $5, company = $6, role = $7, notes = $8, updated_at = NOW()
WHERE id = $1 AND user_id = $2
RETURNING `+contactColumns,
		id, userID, in.Name, in.Email, in.Phone, in.Company, in.Role, in.Notes))
	if err != nil {
		return nil, fmt.Errorf("update contact: %w", ConvertDBError(err))
	}
	return c, nil
}

// Delete removes contact id if it belongs to userID
func (s *ContactStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", ConvertDBError(err))
	}
	return checkAffected(res)
}

// List returns a page of userID's contacts, newest first, and the total
// matching count
func (s *ContactStore) List(ctx context.Context, userID string, opts ListOptions) ([]*domain.Contact, int, error) {
	f := &filter{}
	f.add("user_id = $%d", userID)
	f.addRange("created_at", opts)
	if opts.Search != "" {
		f.add("(name ILIKE $%[1]d OR email ILIKE $%[1]d OR company ILIKE $%[1]d)", likePattern(opts.Search))
	}
	where := f.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`+where, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", ConvertDBError(err))
	}

	limit := f.page(opts)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts`+where+orderBy(opts.Sort, contactSort, "created_at DESC", "id")+limit, f.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", ConvertDBError(err))
	}
	defer rows.Close()

	contacts := make([]*domain.Contact, 0, opts.Limit)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, total, nil
}
