package domain

import (
	"math"
	"strings"
	"time"
)

// EstimateStatus is the approval state of an estimate
type EstimateStatus string

const (
	EstimateDraft     EstimateStatus = "draft"
	EstimateSubmitted EstimateStatus = "submitted"
	EstimateApproved  EstimateStatus = "approved"
	EstimateRejected  EstimateStatus = "rejected"
)

// Valid reports whether s is a known status
func (s EstimateStatus) Valid() bool {
	switch s {
	case EstimateDraft, EstimateSubmitted, EstimateApproved, EstimateRejected:
		return true
	}
	return false
}

// Transition returns the permission needed to move from s to next, or false
// if the move is not allowed. Rejected estimates may be reopened as drafts.
func (s EstimateStatus) Transition(next EstimateStatus) (Permission, bool) {
	switch {
	case s == EstimateDraft && next == EstimateSubmitted:
		return EstimateSubmit, true
	case s == EstimateSubmitted && (next == EstimateApproved || next == EstimateRejected):
		return EstimateApprove, true
	case s == EstimateRejected && next == EstimateDraft:
		return EstimateWrite, true
	}
	return "", false
}

// Estimate is a priced breakdown of work on a project
type Estimate struct {
	ID         string           `json:"id"`
	ProjectID  string           `json:"project_id"`
	Name       string           `json:"name"`
	Notes      string           `json:"notes,omitempty"`
	Status     EstimateStatus   `json:"status"`
	CreatedBy  string           `json:"created_by"`
	TotalCents int64            `json:"total_cents"`
	Groups     []*EstimateGroup `json:"groups,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// EstimateGroup is a named section of an estimate
type EstimateGroup struct {
	ID         string          `json:"id"`
	EstimateID string          `json:"estimate_id"`
	Name       string          `json:"name"`
	Position   int             `json:"position"`
	TotalCents int64           `json:"total_cents"`
	Lines      []*EstimateLine `json:"lines"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// EstimateLine is a single priced item
type EstimateLine struct {
	ID             string    `json:"id"`
	GroupID        string    `json:"group_id"`
	Description    string    `json:"description"`
	Quantity       float64   `json:"quantity"`
	Unit           string    `json:"unit,omitempty"`
	UnitCostCents  int64     `json:"unit_cost_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
	Position       int       `json:"position"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LineTotal returns quantity × unit cost rounded to the nearest cent
func LineTotal(quantity float64, unitCostCents int64) int64 {
	return int64(math.Round(quantity * float64(unitCostCents)))
}

// ComputeTotals fills line, group and estimate totals
func (e *Estimate) ComputeTotals() {
	e.TotalCents = 0
	for _, g := range e.Groups {
		g.TotalCents = 0
		for _, l := range g.Lines {
			l.LineTotalCents = LineTotal(l.Quantity, l.UnitCostCents)
			g.TotalCents += l.LineTotalCents
		}
		e.TotalCents += g.TotalCents
	}
}

// EstimateInput carries the writable estimate fields
type EstimateInput struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// Validate checks an estimate input
func (in EstimateInput) Validate() error {
	var v ValidationErrors
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "is required")
	}
	checkMaxLen(&v, "name", in.Name, 200)
	checkMaxLen(&v, "notes", in.Notes, 10000)
	return v.Err()
}

// GroupInput carries the writable group fields
type GroupInput struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Validate checks a group input
func (in GroupInput) Validate() error {
	var v ValidationErrors
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "is required")
	}
	checkMaxLen(&v, "name", in.Name, 200)
	if in.Position < 0 {
		v.Add("position", "must not be negative")
	}
	return v.Err()
}

// Bounds on line values; their product stays well inside int64
const (
	maxQuantity      = 1e9
	maxUnitCostCents = 1_000_000_000
)

// LineInput carries the writable line fields
type LineInput struct {
	Description   string  `json:"description"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	UnitCostCents int64   `json:"unit_cost_cents"`
	Position      int     `json:"position"`
}

// Validate checks a line input
func (in LineInput) Validate() error {
	var v ValidationErrors
	if strings.TrimSpace(in.Description) == "" {
		v.Add("description", "is required")
	}
	checkMaxLen(&v, "description", in.Description, 500)
	checkMaxLen(&v, "unit", in.Unit, 20)
	if in.Quantity < 0 || in.Quantity > maxQuantity || math.IsNaN(in.Quantity) {
		v.Add("quantity", "must be between 0 and 1000000000")
	}
	if in.UnitCostCents < 0 || in.UnitCostCents > maxUnitCostCents {
		v.Add("unit_cost_cents", "must be between 0 and 1000000000")
	}
	if in.Position < 0 {
		v.Add("position", "must not be negative")
	}
	return v.Err()
}
