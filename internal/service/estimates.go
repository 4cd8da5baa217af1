package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/store"
)

// EstimateService manages estimates and their groups and lines. Reads need
// project membership; edits need the builder role and a draft estimate.
type EstimateService struct {
	estimates EstimateRepository
	authz     authorizer
}

// NewEstimateService creates an estimate service
func NewEstimateService(estimates EstimateRepository, projects ProjectRepository) *EstimateService {
	return &EstimateService{
		estimates: estimates,
		authz:     authorizer{projects: projects},
	}
}

// Create adds a draft estimate to projectID
func (s *EstimateService) Create(ctx context.Context, userID, projectID string, in domain.EstimateInput) (*domain.Estimate, error) {
	if _, err := s.authz.require(ctx, projectID, userID, domain.EstimateWrite); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	e, err := s.estimates.Create(ctx, projectID, userID, in)
	return e, translate(err)
}

// Get returns estimate id with its groups, lines and totals
func (s *EstimateService) Get(ctx context.Context, userID, id string) (*domain.Estimate, error) {
	if _, err := s.load(ctx, userID, id, domain.EstimateRead); err != nil {
		return nil, err
	}
	e, err := s.estimates.GetTree(ctx, id)
	return e, translate(err)
}

// List returns a page of projectID's estimates
func (s *EstimateService) List(ctx context.Context, userID, projectID string, opts store.ListOptions) ([]*domain.Estimate, int, error) {
	if _, err := s.authz.require(ctx, projectID, userID, domain.EstimateRead); err != nil {
		return nil, 0, err
	}
	if opts.Status != "" && !domain.EstimateStatus(opts.Status).Valid() {
		var v domain.ValidationErrors
		v.Add("status", "is not a valid status")
		return nil, 0, v.Err()
	}
	estimates, total, err := s.estimates.ListByProject(ctx, projectID, opts)
	return estimates, total, translate(err)
}

// Update replaces the name and notes of a draft estimate
func (s *EstimateService) Update(ctx context.Context, userID, id string, in domain.EstimateInput) (*domain.Estimate, error) {
	if _, err := s.editable(ctx, userID, id); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	e, err := s.estimates.Update(ctx, id, in)
	return e, translate(err)
}

// Delete removes an estimate that has not been approved
func (s *EstimateService) Delete(ctx context.Context, userID, id string) error {
	e, err := s.load(ctx, userID, id, domain.EstimateWrite)
	if err != nil {
		return err
	}
	if e.Status == domain.EstimateApproved {
		return domain.ErrNotEditable
	}
	return translate(s.estimates.Delete(ctx, id))
}

// ChangeStatus moves estimate id to next. Submitting needs the builder,
// approving or rejecting needs the owner, and a rejected estimate can be
// reopened as a draft by the builder.
func (s *EstimateService) ChangeStatus(ctx context.Context, userID, id string, next domain.EstimateStatus) (*domain.Estimate, error) {
	e, err := s.load(ctx, userID, id, domain.EstimateRead)
	if err != nil {
		return nil, err
	}
	if !next.Valid() {
		var v domain.ValidationErrors
		v.Add("status", "is not a valid status")
		return nil, v.Err()
	}

	perm, ok := e.Status.Transition(next)
	if !ok {
		return nil, fmt.Errorf("%w: cannot move estimate from %s to %s", domain.ErrConflict, e.Status, next)
	}
	if _, err := s.authz.require(ctx, e.ProjectID, userID, perm); err != nil {
		return nil, err
	}

	if err := s.estimates.SetStatus(ctx, id, e.Status, next); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: estimate status changed concurrently", domain.ErrConflict)
		}
		return nil, err
	}
	e, err = s.estimates.Get(ctx, id)
	return e, translate(err)
}

// CreateGroup adds a group to a draft estimate
func (s *EstimateService) CreateGroup(ctx context.Context, userID, estimateID string, in domain.GroupInput) (*domain.EstimateGroup, error) {
	if _, err := s.editable(ctx, userID, estimateID); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	g, err := s.estimates.CreateGroup(ctx, estimateID, in)
	return g, translate(err)
}

// UpdateGroup replaces the name and position of group id
func (s *EstimateService) UpdateGroup(ctx context.Context, userID, id string, in domain.GroupInput) (*domain.EstimateGroup, error) {
	if _, err := s.editableGroup(ctx, userID, id); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	g, err := s.estimates.UpdateGroup(ctx, id, in)
	return g, translate(err)
}

// DeleteGroup removes group id and its lines
func (s *EstimateService) DeleteGroup(ctx context.Context, userID, id string) error {
	if _, err := s.editableGroup(ctx, userID, id); err != nil {
		return err
	}
	return translate(s.estimates.DeleteGroup(ctx, id))
}

// CreateLine adds a line to group groupID
func (s *EstimateService) CreateLine(ctx context.Context, userID, groupID string, in domain.LineInput) (*domain.EstimateLine, error) {
	if _, err := s.editableGroup(ctx, userID, groupID); err != nil {
		return nil, err
	}
	in.Description = strings.TrimSpace(in.Description)
	in.Unit = strings.TrimSpace(in.Unit)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	l, err := s.estimates.CreateLine(ctx, groupID, in)
	return l, translate(err)
}

// UpdateLine replaces the fields of line id
func (s *EstimateService) UpdateLine(ctx context.Context, userID, id string, in domain.LineInput) (*domain.EstimateLine, error) {
	if err := s.editableLine(ctx, userID, id); err != nil {
		return nil, err
	}
	in.Description = strings.TrimSpace(in.Description)
	in.Unit = strings.TrimSpace(in.Unit)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	l, err := s.estimates.UpdateLine(ctx, id, in)
	return l, translate(err)
}

// DeleteLine removes line id
func (s *EstimateService) DeleteLine(ctx context.Context, userID, id string) error {
	if err := s.editableLine(ctx, userID, id); err != nil {
		return err
	}
	return translate(s.estimates.DeleteLine(ctx, id))
}

// load fetches the estimate header and checks perm on its project
func (s *EstimateService) load(ctx context.Context, userID, id string, perm domain.Permission) (*domain.Estimate, error) {
	e, err := s.estimates.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if _, err := s.authz.require(ctx, e.ProjectID, userID, perm); err != nil {
		return nil, err
	}
	return e, nil
}

// editable checks that userID may write estimate id and that it is a draft
func (s *EstimateService) editable(ctx context.Context, userID, id string) (*domain.Estimate, error) {
	e, err := s.load(ctx, userID, id, domain.EstimateWrite)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.EstimateDraft {
		return nil, domain.ErrNotEditable
	}
	return e, nil
}

func (s *EstimateService) editableGroup(ctx context.Context, userID, groupID string) (*domain.EstimateGroup, error) {
	g, err := s.estimates.GetGroup(ctx, groupID)
	if err != nil {
		return nil, translate(err)
	}
	if _, err := s.editable(ctx, userID, g.EstimateID); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *EstimateService) editableLine(ctx context.Context, userID, lineID string) error {
	l, err := s.estimates.GetLine(ctx, lineID)
	if err != nil {
		return translate(err)
	}
	_, err = s.editableGroup(ctx, userID, l.GroupID)
	return err
}
