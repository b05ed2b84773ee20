package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors for database operations. Check with errors.Is.
var (
	ErrNotFound = errors.New("record not found")

	// ErrConflict is a unique-constraint violation, e.g. two active tenants on one session.
	ErrConflict = errors.New("record conflicts with an existing one")
)

const uniqueViolation = "23505"

// wrapQueryError maps pgx errors onto the sentinels above.
func wrapQueryError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w (%s)", op, ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}
