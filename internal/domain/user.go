package domain

import (
	"net/mail"
	"strings"
	"time"
)

// User is a registered account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `json:"phone,omitempty"`
	Company      string    `json:"company,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile holds the user editable fields of an account
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a bare address
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Validate checks profile field lengths
func (p Profile) Validate() error {
	var v ValidationErrors
	if strings.TrimSpace(p.FirstName) == "" {
		v.Add("first_name", "is required")
	}
	if strings.TrimSpace(p.LastName) == "" {
		v.Add("last_name", "is required")
	}
	checkMaxLen(&v, "first_name", p.FirstName, 100)
	checkMaxLen(&v, "last_name", p.LastName, 100)
	checkMaxLen(&v, "phone", p.Phone, 50)
	checkMaxLen(&v, "company", p.Company, 200)
	return v.Err()
}

func checkMaxLen(v *ValidationErrors, field, value string, max int) {
	if len([]rune(value)) > max {
		v.Add(field, "is too long")
	}
}
