package commands

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/buildplan/buildplan/internal/config"
)

// writeConfig writes a config file and clears environment overrides
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	t.Setenv("BUILDPLAN_DATABASE_URL", "")
	t.Setenv("BUILDPLAN_AUTH_JWT_SECRET", "")

	path := filepath.Join(t.TempDir(), "buildplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// mockDB swaps openDB for a sqlmock connection for the duration of the test
func mockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	prev := openDB
	openDB = func(context.Context, config.DatabaseConfig) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { openDB = prev })
	return mock
}

// run executes the root command with args and returns its output
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
