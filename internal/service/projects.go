package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/store"
)

// UserRef identifies a user by ID or, when the ID is empty, by email
type UserRef struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// IsZero reports whether the reference names no user
func (r UserRef) IsZero() bool {
	return r.UserID == "" && r.Email == ""
}

// ProjectService manages projects and their membership
type ProjectService struct {
	projects ProjectRepository
	users    UserRepository
	authz    authorizer
}

// NewProjectService creates a project service
func NewProjectService(projects ProjectRepository, users UserRepository) *ProjectService {
	return &ProjectService{
		projects: projects,
		users:    users,
		authz:    authorizer{projects: projects},
	}
}

// Create adds a project with userID as its builder
func (s *ProjectService) Create(ctx context.Context, userID string, in domain.ProjectInput) (*domain.Project, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p, err := s.projects.Create(ctx, userID, in)
	return p, translate(err)
}

// Get returns project id if userID is a member
func (s *ProjectService) Get(ctx context.Context, userID, id string) (*domain.Project, error) {
	if _, err := s.authz.require(ctx, id, userID, domain.ProjectRead); err != nil {
		return nil, err
	}
	p, err := s.projects.Get(ctx, id)
	return p, translate(err)
}

// List returns a page of the projects userID is a member of
func (s *ProjectService) List(ctx context.Context, userID string, opts store.ListOptions) ([]*domain.Project, int, error) {
	if opts.Status != "" && !domain.ProjectStatus(opts.Status).Valid() {
		var v domain.ValidationErrors
		v.Add("status", "is not a valid status")
		return nil, 0, v.Err()
	}
	projects, total, err := s.projects.ListForUser(ctx, userID, opts)
	return projects, total, translate(err)
}

// Update replaces the writable fields of project id
func (s *ProjectService) Update(ctx context.Context, userID, id string, in domain.ProjectInput) (*domain.Project, error) {
	if _, err := s.authz.require(ctx, id, userID, domain.ProjectUpdate); err != nil {
		return nil, err
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p, err := s.projects.Update(ctx, id, in)
	return p, translate(err)
}

// Delete removes project id with its estimates
func (s *ProjectService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.authz.require(ctx, id, userID, domain.ProjectDelete); err != nil {
		return err
	}
	return translate(s.projects.Delete(ctx, id))
}

// AssignOwner sets the owner of project id, or clears it when ref is zero
func (s *ProjectService) AssignOwner(ctx context.Context, userID, id string, ref UserRef) (*domain.Project, error) {
	if _, err := s.authz.require(ctx, id, userID, domain.ProjectAssignOwner); err != nil {
		return nil, err
	}
	if ref.IsZero() {
		p, err := s.projects.SetOwner(ctx, id, nil)
		return p, translate(err)
	}

	owner, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	role, err := s.projects.Role(ctx, id, owner.ID)
	if err != nil {
		return nil, translate(err)
	}
	if role == domain.RoleBuilder {
		var v domain.ValidationErrors
		v.Add("user_id", "the builder cannot also be the owner")
		return nil, v.Err()
	}

	p, err := s.projects.SetOwner(ctx, id, &owner.ID)
	return p, translate(err)
}

// AddParticipant invites a user to project id
func (s *ProjectService) AddParticipant(ctx context.Context, userID, id string, ref UserRef) ([]*domain.Member, error) {
	if _, err := s.authz.require(ctx, id, userID, domain.MembersManage); err != nil {
		return nil, err
	}
	u, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	role, err := s.projects.Role(ctx, id, u.ID)
	if err != nil {
		return nil, translate(err)
	}
	switch role {
	case domain.RoleBuilder, domain.RoleOwner:
		return nil, domain.ErrConflict
	case "":
		if err := s.projects.AddParticipant(ctx, id, u.ID); err != nil {
			return nil, translate(err)
		}
	}
	return s.members(ctx, id)
}

// RemoveParticipant removes participantID from project id. Participants may
// remove themselves.
func (s *ProjectService) RemoveParticipant(ctx context.Context, userID, id, participantID string) error {
	perm := domain.MembersManage
	if userID == participantID {
		perm = domain.ProjectRead
	}
	if _, err := s.authz.require(ctx, id, userID, perm); err != nil {
		return err
	}
	return translate(s.projects.RemoveParticipant(ctx, id, participantID))
}

// Members lists the builder, owner and participants of project id
func (s *ProjectService) Members(ctx context.Context, userID, id string) ([]*domain.Member, error) {
	if _, err := s.authz.require(ctx, id, userID, domain.ProjectRead); err != nil {
		return nil, err
	}
	return s.members(ctx, id)
}

func (s *ProjectService) members(ctx context.Context, id string) ([]*domain.Member, error) {
	members, err := s.projects.Members(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if members == nil {
		members = []*domain.Member{}
	}
	return members, nil
}

// resolve looks up the user named by ref; unknown users are a validation
// error on the referencing field
func (s *ProjectService) resolve(ctx context.Context, ref UserRef) (*domain.User, error) {
	var (
		u     *domain.User
		err   error
		field string
	)
	switch {
	case ref.UserID != "":
		field = "user_id"
		if uuid.Validate(ref.UserID) != nil {
			err = store.ErrNotFound
			break
		}
		u, err = s.users.GetByID(ctx, ref.UserID)
	case ref.Email != "":
		field = "email"
		u, err = s.users.GetByEmail(ctx, domain.NormalizeEmail(ref.Email))
	default:
		var v domain.ValidationErrors
		v.Add("user_id", "user_id or email is required")
		return nil, v.Err()
	}

	if store.IsNotFound(err) {
		var v domain.ValidationErrors
		v.Add(field, "no such user")
		return nil, v.Err()
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
