package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when no row matches, or an UPDATE or DELETE
	// touched nothing
	ErrNotFound = errors.New("record not found")

	// ErrUniqueViolation is returned for duplicate emails and memberships
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a referenced project, estimate,
	// group or user no longer exists
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a row fails a CHECK constraint, such
	// as a negative quantity or an unknown status
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a required column is missing
	ErrNotNullViolation = errors.New("not null constraint violation")
)

// constraintErrors maps PostgreSQL integrity SQLSTATEs to store errors
var constraintErrors = map[string]error{
	"23505": ErrUniqueViolation,
	"23503": ErrForeignKeyViolation,
	"23514": ErrCheckViolation,
	"23502": ErrNotNullViolation,
}

// ConvertDBError converts driver errors to store errors, naming the
// constraint or column involved
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	target, ok := constraintErrors[pgErr.Code]
	if !ok {
		return err
	}
	if pgErr.Code == "23502" {
		return fmt.Errorf("%w: column %s", target, pgErr.ColumnName)
	}
	return fmt.Errorf("%w: %s", target, pgErr.ConstraintName)
}

// IsNotFound reports whether err is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation reports whether err is ErrUniqueViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// checkAffected returns ErrNotFound when an UPDATE or DELETE touched no rows
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
