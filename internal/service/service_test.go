package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buildplan/buildplan/internal/domain"
	"github.com/buildplan/buildplan/internal/store"
)

func TestTranslate(t *testing.T) {
	other := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", store.ErrNotFound, domain.ErrNotFound},
		{"vanished parent", fmt.Errorf("%w: estimates_project_id_fkey", store.ErrForeignKeyViolation), domain.ErrNotFound},
		{"duplicate", fmt.Errorf("%w: users_email_key", store.ErrUniqueViolation), domain.ErrConflict},
		{"passthrough", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.err), tt.want)
		})
	}
	assert.NoError(t, translate(nil))
}

func TestMergeValidation(t *testing.T) {
	var v domain.ValidationErrors
	v.Add("email", "is required")

	var profile domain.ValidationErrors
	profile.Add("first_name", "is required")
	assert.NoError(t, mergeValidation(&v, &profile))
	assert.Equal(t, []string{"is required"}, v.Fields["first_name"])
	assert.Len(t, v.Fields, 2)

	assert.NoError(t, mergeValidation(&v, nil))

	unexpected := errors.New("profile check failed")
	assert.ErrorIs(t, mergeValidation(&v, unexpected), unexpected)
	assert.Len(t, v.Fields, 2)
}
