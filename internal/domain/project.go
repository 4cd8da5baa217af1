package domain

import (
	"strings"
	"time"
)

// ProjectStatus is the lifecycle state of a project
type ProjectStatus string

const (
	ProjectPlanned   ProjectStatus = "planned"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanned, ProjectActive, ProjectOnHold, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

// Project is a construction project
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Address     string        `json:"address,omitempty"`
	Status      ProjectStatus `json:"status"`
	StartDate   *time.Time    `json:"start_date,omitempty"`
	EndDate     *time.Time    `json:"end_date,omitempty"`
	BuilderID   string        `json:"builder_id"`
	OwnerID     *string       `json:"owner_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ProjectInput carries the writable project fields
type ProjectInput struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Address     string        `json:"address"`
	Status      ProjectStatus `json:"status"`
	StartDate   *time.Time    `json:"start_date"`
	EndDate     *time.Time    `json:"end_date"`
}

// Normalize trims text fields and defaults the status to planned
func (in ProjectInput) Normalize() ProjectInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	if in.Status == "" {
		in.Status = ProjectPlanned
	}
	return in
}

// Validate checks a normalized project input
func (in ProjectInput) Validate() error {
	var v ValidationErrors
	if in.Name == "" {
		v.Add("name", "is required")
	}
	checkMaxLen(&v, "name", in.Name, 200)
	checkMaxLen(&v, "address", in.Address, 500)
	checkMaxLen(&v, "description", in.Description, 10000)
	if !in.Status.Valid() {
		v.Add("status", "is not a valid status")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		v.Add("end_date", "must not be before start_date")
	}
	return v.Err()
}

// Member is a user with a role on a project
type Member struct {
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Role      ProjectRole `json:"role"`
	AddedAt   time.Time   `json:"added_at"`
}
