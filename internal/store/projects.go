package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/buildplan/buildplan/internal/domain"
)

// ProjectStore persists projects and their membership
type ProjectStore struct {
	db DBTX
}

// NewProjectStore creates a project store
func NewProjectStore(db DBTX) *ProjectStore {
	return &ProjectStore{db: db}
}

const projectColumns = `p.id, p.name, p.description, p.address, p.status, p.start_date, p.end_date,
	p.builder_id, p.owner_id, p.created_at, p.updated_at`

// projectSort maps sort keys to columns
var projectSort = map[string]string{
	"name":       "p.name",
	"status":     "p.status",
	"start_date": "p.start_date",
	"created_at": "p.created_at",
}

// memberCondition matches projects where the user at placeholder $%[1]d has any role
const memberCondition = `(p.builder_id = $%[1]d OR p.owner_id = $%[1]d OR EXISTS (
	SELECT 1 FROM project_participants pp WHERE pp.project_id = p.id AND pp.user_id = $%[1]d))`

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p          domain.Project
		status     string
		start, end sql.NullTime
		owner      sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Address, &status, &start, &end,
		&p.BuilderID, &owner, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = domain.ProjectStatus(status)
	p.StartDate = timePtr(start)
	p.EndDate = timePtr(end)
	p.OwnerID = stringPtr(owner)
	return &p, nil
}

// Create inserts a project built by builderID
func (s *ProjectStore) Create(ctx context.Context, builderID string, in domain.ProjectInput) (*domain.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `
INSERT INTO projects AS p (id, name, description, address, status, start_date, end_date, builder_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+projectColumns,
		newID(), in.Name, in.Description, in.Address, string(in.Status),
		nullTime(in.StartDate), nullTime(in.EndDate), builderID))
	if err != nil {
		return nil, fmt.Errorf("create project: %w", ConvertDBError(err))
	}
	return p, nil
}

// Get returns project id
func (s *ProjectStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get project: %w", ConvertDBError(err))
	}
	return p, nil
}

// Update replaces the writable fields of project id
func (s *ProjectStore) Update(ctx context.Context, id string, in domain.ProjectInput) (*domain.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `
UPDATE projects AS p
SET name = $2, description = $3, address = $4, status = $5, start_date = $6, end_date = $7, updated_at = NOW()
WHERE p.id = $1
RETURNING `+projectColumns,
		id, in.Name, in.Description, in.Address, string(in.Status),
		nullTime(in.StartDate), nullTime(in.EndDate)))
	if err != nil {
		return nil, fmt.Errorf("update project: %w", ConvertDBError(err))
	}
	return p, nil
}

// Delete removes project id and, by cascade, its participants and estimates
func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", ConvertDBError(err))
	}
	return checkAffected(res)
}

// SetOwner sets or clears the owner of project id. A new owner is removed
// from the participant list so each user holds one role.
func (s *ProjectStore) SetOwner(ctx context.Context, id string, ownerID *string) (*domain.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `
UPDATE projects AS p SET owner_id = $2, updated_at = NOW()
WHERE p.id = $1
RETURNING `+projectColumns, id, nullString(ownerID)))
	if err != nil {
		return nil, fmt.Errorf("set project owner: %w", ConvertDBError(err))
	}
	if ownerID != nil {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM project_participants WHERE project_id = $1 AND user_id = $2`, id, *ownerID); err != nil {
			return nil, fmt.Errorf("set project owner: %w", ConvertDBError(err))
		}
	}
	return p, nil
}

// AddParticipant adds userID as a participant; adding twice is a no-op
func (s *ProjectStore) AddParticipant(ctx context.Context, projectID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO project_participants (project_id, user_id) VALUES ($1, $2)
ON CONFLICT (project_id, user_id) DO NOTHING`, projectID, userID)
	if err != nil {
		return fmt.Errorf("add participant: %w", ConvertDBError(err))
	}
	return nil
}

// RemoveParticipant removes userID from the participants of projectID
func (s *ProjectStore) RemoveParticipant(ctx context.Context, projectID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM project_participants WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", ConvertDBError(err))
	}
	return checkAffected(res)
}

// Role returns userID's role on projectID, or "" when the user is not a
// member. ErrNotFound means the project does not exist.
func (s *ProjectStore) Role(ctx context.Context, projectID, userID string) (domain.ProjectRole, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
SELECT CASE
	WHEN p.builder_id = $2 THEN 'builder'
	WHEN p.owner_id = $2 THEN 'owner'
	WHEN EXISTS (SELECT 1 FROM project_participants pp WHERE pp.project_id = p.id AND pp.user_id = $2) THEN 'participant'
	ELSE ''
END
FROM projects p WHERE p.id = $1`, projectID, userID).Scan(&role)
	if err != nil {
		return "", fmt.Errorf("project role: %w", ConvertDBError(err))
	}
	return domain.ProjectRole(role), nil
}

// Members lists the builder, owner and participants of projectID
func (s *ProjectStore) Members(ctx context.Context, projectID string) ([]*domain.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT u.id, u.email, u.first_name, u.last_name, 'builder' AS role, p.created_at AS added_at
FROM projects p JOIN users u ON u.id = p.builder_id WHERE p.id = $1
UNION ALL
SELECT u.id, u.email, u.first_name, u.last_name, 'owner', p.updated_at
FROM projects p JOIN users u ON u.id = p.owner_id WHERE p.id = $1
UNION ALL
SELECT u.id, u.email, u.first_name, u.last_name, 'participant', pp.added_at
FROM project_participants pp JOIN users u ON u.id = pp.user_id WHERE pp.project_id = $1
ORDER BY added_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", ConvertDBError(err))
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		var (
			m    domain.Member
			role string
		)
		if err := rows.Scan(&m.UserID, &m.Email, &m.FirstName, &m.LastName, &role, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = domain.ProjectRole(role)
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// ListForUser returns a page of projects where userID has any role, newest
// first, and the total matching count
func (s *ProjectStore) ListForUser(ctx context.Context, userID string, opts ListOptions) ([]*domain.Project, int, error) {
	f := &filter{}
	f.add(memberCondition, userID)
	f.addRange("p.created_at", opts)
	if opts.Status != "" {
		f.add("p.status = $%d", opts.Status)
	}
	if opts.Search != "" {
		f.add("(p.name ILIKE $%[1]d OR p.address ILIKE $%[1]d)", likePattern(opts.Search))
	}
	where := f.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects p`+where, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", ConvertDBError(err))
	}

	limit := f.page(opts)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects p`+where+orderBy(opts.Sort, projectSort, "p.created_at DESC", "p.id")+limit, f.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", ConvertDBError(err))
	}
	defer rows.Close()

	projects := make([]*domain.Project, 0, opts.Limit)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	return projects, total, nil
}
