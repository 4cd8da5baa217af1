package service

import (
	"context"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/store"
)

// ContactService manages each user's address book. Contacts of other users
// are reported as not found.
type ContactService struct {
	contacts ContactRepository
}

// NewContactService creates a contact service
func NewContactService(contacts ContactRepository) *ContactService {
	return &ContactService{contacts: contacts}
}

// Create adds a contact for userID
func (s *ContactService) Create(ctx context.Context, userID string, in domain.ContactInput) (*domain.Contact, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c, err := s.contacts.Create(ctx, userID, in)
	return c, translate(err)
}

// Get returns contact id of userID
func (s *ContactService) Get(ctx context.Context, userID, id string) (*domain.Contact, error) {
	c, err := s.contacts.Get(ctx, userID, id)
	return c, translate(err)
}

// Update replaces the fields of contact id
func (s *ContactService) Update(ctx context.Context, userID, id string, in domain.ContactInput) (*domain.Contact, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c, err := s.contacts.Update(ctx, userID, id, in)
	return c, translate(err)
}

// Delete removes contact id
func (s *ContactService) Delete(ctx context.Context, userID, id string) error {
	return translate(s.contacts.Delete(ctx, userID, id))
}

// List returns a page of userID's contacts and the total count
func (s *ContactService) List(ctx context.Context, userID string, opts store.ListOptions) ([]*domain.Contact, int, error) {
	contacts, total, err := s.contacts.List(ctx, userID, opts)
	return contacts, total, translate(err)
}
