package domain

import (
	"strings"
	"time"
)

// Contact is an entry in a user's address book
type Contact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Role      string    `json:"role,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactInput carries the writable contact fields
type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Role    string `json:"role"`
	Notes   string `json:"notes"`
}

// Normalize trims whitespace and lower-cases the email
func (in ContactInput) Normalize() ContactInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Company = strings.TrimSpace(in.Company)
	in.Role = strings.TrimSpace(in.Role)
	return in
}

// Validate checks a normalized contact input
func (in ContactInput) Validate() error {
	var v ValidationErrors
	if in.Name == "" {
		v.Add("name", "is required")
	}
	checkMaxLen(&v, "name", in.Name, 200)
	if in.Email != "" && !ValidEmail(in.Email) {
		v.Add("email", "is not a valid email address")
	}
	checkMaxLen(&v, "phone", in.Phone, 50)
	checkMaxLen(&v, "company", in.Company, 200)
	checkMaxLen(&v, "role", in.Role, 100)
	checkMaxLen(&v, "notes", in.Notes, 5000)
	return v.Err()
}
