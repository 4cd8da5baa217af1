package store

import (
	"context"
	"fmt"

	"github.com/buildplan/buildplan/internal/domain"
)

// EstimateStore persists estimates with their groups and lines
type EstimateStore struct {
	db DBTX
}

// NewEstimateStore creates an estimate store
func NewEstimateStore(db DBTX) *EstimateStore {
	return &EstimateStore{db: db}
}

// estimateTotal sums rounded line totals in SQL so list pages carry totals
// without loading every line
const estimateTotal = `COALESCE((
	SELECT SUM(ROUND(l.quantity * l.unit_cost_cents))
	FROM estimate_lines l JOIN estimate_groups g ON g.id = l.group_id
	WHERE g.estimate_id = e.id), 0)::BIGINT`

const estimateColumns = `e.id, e.project_id, e.name, e.notes, e.status, e.created_by, ` + estimateTotal + `, e.created_at, e.updated_at`

// estimateSort maps sort keys to columns
var estimateSort = map[string]string{
	"name":       "e.name",
	"status":     "e.status",
	"created_at": "e.created_at",
}

const groupColumns = `id, estimate_id, name, position, created_at, updated_at`

const lineColumns = `id, group_id, description, quantity, unit, unit_cost_cents, position, created_at, updated_at`

func scanEstimate(row rowScanner) (*domain.Estimate, error) {
	var (
		e      domain.Estimate
		status string
	)
	err := row.Scan(&e.ID, &e.ProjectID, &e.Name, &e.Notes, &status, &e.CreatedBy,
		&e.TotalCents, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = domain.EstimateStatus(status)
	return &e, nil
}

func scanGroup(row rowScanner) (*domain.EstimateGroup, error) {
	g := &domain.EstimateGroup{Lines: []*domain.EstimateLine{}}
	if err := row.Scan(&g.ID, &g.EstimateID, &g.Name, &g.Position, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return g, nil
}

func scanLine(row rowScanner) (*domain.EstimateLine, error) {
	l := &domain.EstimateLine{}
	err := row.Scan(&l.ID, &l.GroupID, &l.Description, &l.Quantity, &l.Unit,
		&l.UnitCostCents, &l.Position, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.LineTotalCents = domain.LineTotal(l.Quantity, l.UnitCostCents)
	return l, nil
}

// Create inserts a draft estimate on projectID
func (s *EstimateStore) Create(ctx context.Context, projectID, createdBy string, in domain.EstimateInput) (*domain.Estimate, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO estimates (id, project_id, name, notes, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6)`,
		id, projectID, in.Name, in.Notes, string(domain.EstimateDraft), createdBy)
	if err != nil {
		return nil, fmt.Errorf("create estimate: %w", ConvertDBError(err))
	}
	return s.Get(ctx, id)
}

// Get returns the estimate header with its computed total
func (s *EstimateStore) Get(ctx context.Context, id string) (*domain.Estimate, error) {
	e, err := scanEstimate(s.db.QueryRowContext(ctx,
		`SELECT `+estimateColumns+` FROM estimates e WHERE e.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", ConvertDBError(err))
	}
	return e, nil
}

// GetTree returns the estimate with groups and lines ordered by position and
// all totals computed
func (s *EstimateStore) GetTree(ctx context.Context, id string) (*domain.Estimate, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM estimate_groups WHERE estimate_id = $1 ORDER BY position, created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", ConvertDBError(err))
	}
	defer rows.Close()

	e.Groups = []*domain.EstimateGroup{}
	byID := make(map[string]*domain.EstimateGroup)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		e.Groups = append(e.Groups, g)
		byID[g.ID] = g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	rows.Close()

	lineRows, err := s.db.QueryContext(ctx, `
SELECT l.id, l.group_id, l.description, l.quantity, l.unit, l.unit_cost_cents, l.position, l.created_at, l.updated_at
FROM estimate_lines l JOIN estimate_groups g ON g.id = l.group_id
WHERE g.estimate_id = $1
ORDER BY l.position, l.created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", ConvertDBError(err))
	}
	defer lineRows.Close()

	for lineRows.Next() {
		l, err := scanLine(lineRows)
		if err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		if g, ok := byID[l.GroupID]; ok {
			g.Lines = append(g.Lines, l)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}

	e.ComputeTotals()
	return e, nil
}

// ListByProject returns a page of projectID's estimates, newest first, and
// the total matching count
func (s *EstimateStore) ListByProject(ctx context.Context, projectID string, opts ListOptions) ([]*domain.Estimate, int, error) {
	f := &filter{}
	f.add("e.project_id = $%d", projectID)
	f.addRange("e.created_at", opts)
	if opts.Status != "" {
		f.add("e.status = $%d", opts.Status)
	}
	if opts.Search != "" {
		f.add("e.name ILIKE $%d", likePattern(opts.Search))
	}
	where := f.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM estimates e`+where, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count estimates: %w", ConvertDBError(err))
	}

	limit := f.page(opts)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+estimateColumns+` FROM estimates e`+where+orderBy(opts.Sort, estimateSort, "e.created_at DESC", "e.id")+limit, f.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list estimates: %w", ConvertDBError(err))
	}
	defer rows.Close()

	estimates := make([]*domain.Estimate, 0, opts.Limit)
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan estimate: %w", err)
		}
		estimates = append(estimates, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list estimates: %w", err)
	}
	return estimates, total, nil
}

// Update replaces the name and notes of estimate id
func (s *EstimateStore) Update(ctx context.Context, id string, in domain.EstimateInput) (*domain.Estimate, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE estimates SET name = $2, notes = $3, updated_at = NOW() WHERE id = $1`, id, in.Name, in.Notes)
	if err != nil {
		return nil, fmt.Errorf("update estimate: %w", ConvertDBError(err))
	}
	if err := checkAffected(res); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetStatus moves estimate id from status from to status to. It returns
// ErrNotFound if the estimate is no longer in status from.
func (s *EstimateStore) SetStatus(ctx context.Context, id string, from, to domain.EstimateStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE estimates SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("set estimate status: %w", ConvertDBError(err))
	}
	return checkAffected(res)
}

// Delete removes estimate id with its groups and lines
func (s *EstimateStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM estimates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete estimate: %w", ConvertDBError(err))
	}
	return checkAffected(res)
}

// CreateGroup adds a group to estimateID
func (s *EstimateStore) CreateGroup(ctx context.Context, estimateID string, in domain.GroupInput) (*domain.EstimateGroup, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, `
INSERT INTO estimate_groups (id, estimate_id, name, position) VALUES ($1, $2, $3, $4)
RETURNING `+groupColumns, newID(), estimateID, in.Name, in.Position))
	if err != nil {
		return nil, fmt.Errorf("create group: %w", ConvertDBError(err))
	}
	return g, nil
}

// GetGroup returns group id without its lines
func (s *EstimateStore) GetGroup(ctx context.Context, id string) (*domain.EstimateGroup, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM estimate_groups WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get group: %w", ConvertDBError(err))
	}
	return g, nil
}

// UpdateGroup replaces the name and position of group id
func (s *EstimateStore) UpdateGroup(ctx context.Context, id string, in domain.GroupInput) (*domain.EstimateGroup, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, `
UPDATE estimate_groups SET name = $2, position = $3, updated_at = NOW() WHERE id = $1
RETURNING `+groupColumns, id, in.Name, in.Position))
	if err != nil {
		return nil, fmt.Errorf("update group: %w", ConvertDBError(err))
	}
	return g, nil
}

// DeleteGroup removes group id with its lines
func (s *EstimateStore) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM estimate_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", ConvertDBError(err))
	}
	return checkAffected(res)
}

// CreateLine adds a line to groupID
func (s *EstimateStore) CreateLine(ctx context.Context, groupID string, in domain.LineInput) (*domain.EstimateLine, error) {
	l, err := scanLine(s.db.QueryRowContext(ctx, `
INSERT INTO estimate_lines (id, group_id, description, quantity, unit, unit_cost_cents, position)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+lineColumns,
		newID(), groupID, in.Description, in.Quantity, in.Unit, in.UnitCostCents, in.Position))
	if err != nil {
		return nil, fmt.Errorf("create line: %w", ConvertDBError(err))
	}
	return l, nil
}

// GetLine returns line id
func (s *EstimateStore) GetLine(ctx context.Context, id string) (*domain.EstimateLine, error) {
	l, err := scanLine(s.db.QueryRowContext(ctx,
		`SELECT `+lineColumns+` FROM estimate_lines WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get line: %w", ConvertDBError(err))
	}
	return l, nil
}

// UpdateLine replaces the fields of line id
func (s *EstimateStore) UpdateLine(ctx context.Context, id string, in domain.LineInput) (*domain.EstimateLine, error) {
	l, err := scanLine(s.db.QueryRowContext(ctx, `
UPDATE estimate_lines
SET description = $2, quantity = $3, unit = $4, unit_cost_cents = $5, position = $6, updated_at = NOW()
WHERE id = $1
RETURNING `+lineColumns,
		id, in.Description, in.Quantity, in.Unit, in.UnitCostCents, in.Position))
	if err != nil {
		return nil, fmt.Errorf("update line: %w", ConvertDBError(err))
	}
	return l, nil
}

// DeleteLine removes line id
func (s *EstimateStore) DeleteLine(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM estimate_lines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete line: %w", ConvertDBError(err))
	}
	return checkAffected(res)
}
