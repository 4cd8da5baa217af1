// Package service implements the application operations on top of the
// store repositories. Services enforce validation and project-level
// authorization and translate store errors into domain errors.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/store"
)

// UserRepository persists user accounts
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, p domain.Profile) (*domain.User, error)
}

// ContactRepository persists contacts scoped to their owning user
type ContactRepository interface {
	Create(ctx context.Context, userID string, in domain.ContactInput) (*domain.Contact, error)
	Get(ctx context.Context, userID, id string) (*domain.Contact, error)
	Update(ctx context.Context, userID, id string, in domain.ContactInput) (*domain.Contact, error)
	Delete(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string, opts store.ListOptions) ([]*domain.Contact, int, error)
}

// ProjectRepository persists projects and their membership
type ProjectRepository interface {
	Create(ctx context.Context, builderID string, in domain.ProjectInput) (*domain.Project, error)
	Get(ctx context.Context, id string) (*domain.Project, error)
	Update(ctx context.Context, id string, in domain.ProjectInput) (*domain.Project, error)
	Delete(ctx context.Context, id string) error
	SetOwner(ctx context.Context, id string, ownerID *string) (*domain.Project, error)
	AddParticipant(ctx context.Context, projectID, userID string) error
	RemoveParticipant(ctx context.Context, projectID, userID string) error
	Role(ctx context.Context, projectID, userID string) (domain.ProjectRole, error)
	Members(ctx context.Context, projectID string) ([]*domain.Member, error)
	ListForUser(ctx context.Context, userID string, opts store.ListOptions) ([]*domain.Project, int, error)
}

// EstimateRepository persists estimates, groups and lines
type EstimateRepository interface {
	Create(ctx context.Context, projectID, createdBy string, in domain.EstimateInput) (*domain.Estimate, error)
	Get(ctx context.Context, id string) (*domain.Estimate, error)
	GetTree(ctx context.Context, id string) (*domain.Estimate, error)
	ListByProject(ctx context.Context, projectID string, opts store.ListOptions) ([]*domain.Estimate, int, error)
	Update(ctx context.Context, id string, in domain.EstimateInput) (*domain.Estimate, error)
	SetStatus(ctx context.Context, id string, from, to domain.EstimateStatus) error
	Delete(ctx context.Context, id string) error

	CreateGroup(ctx context.Context, estimateID string, in domain.GroupInput) (*domain.EstimateGroup, error)
	GetGroup(ctx context.Context, id string) (*domain.EstimateGroup, error)
	UpdateGroup(ctx context.Context, id string, in domain.GroupInput) (*domain.EstimateGroup, error)
	DeleteGroup(ctx context.Context, id string) error

	CreateLine(ctx context.Context, groupID string, in domain.LineInput) (*domain.EstimateLine, error)
	GetLine(ctx context.Context, id string) (*domain.EstimateLine, error)
	UpdateLine(ctx context.Context, id string, in domain.LineInput) (*domain.EstimateLine, error)
	DeleteLine(ctx context.Context, id string) error
}

// Compile-time checks that the store repositories satisfy the interfaces
var (
	_ UserRepository     = (*store.UserStore)(nil)
	_ ContactRepository  = (*store.ContactStore)(nil)
	_ ProjectRepository  = (*store.ProjectStore)(nil)
	_ EstimateRepository = (*store.EstimateStore)(nil)
)

// translate maps store errors onto domain errors, keeping the original
// message for logs
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrForeignKeyViolation):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, store.ErrUniqueViolation):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

// mergeValidation folds field errors from err into v. Any other error is
// returned unchanged.
func mergeValidation(v *domain.ValidationErrors, err error) error {
	if err == nil {
		return nil
	}
	var fields *domain.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	for field, msgs := range fields.Fields {
		for _, msg := range msgs {
			v.Add(field, msg)
		}
	}
	return nil
}

// authorizer resolves a caller's role on a project and checks permissions
type authorizer struct {
	projects ProjectRepository
}

// require returns the caller's role if it grants perm. Callers with no role
// on the project get ErrNotFound so project IDs are not disclosed.
func (a authorizer) require(ctx context.Context, projectID, userID string, perm domain.Permission) (domain.ProjectRole, error) {
	role, err := a.projects.Role(ctx, projectID, userID)
	if err != nil {
		return "", translate(err)
	}
	if role == "" {
		return "", domain.ErrNotFound
	}
	if !role.Can(perm) {
		return role, domain.ErrForbidden
	}
	return role, nil
}
