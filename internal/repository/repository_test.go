package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[]", VectorLiteral(nil))
	assert.Equal(t, "[0.5,-1,0.25]", VectorLiteral([]float32{0.5, -1, 0.25}))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "formule", escapeLike("formule"))
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\dir`, escapeLike(`c:\dir`))
}

func TestWrapQueryError(t *testing.T) {
	assert.NoError(t, wrapQueryError("op", nil))
	assert.ErrorIs(t, wrapQueryError("op", pgx.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, wrapQueryError("op", fmt.Errorf("scan: %w", pgx.ErrNoRows)), ErrNotFound)

	unique := &pgconn.PgError{Code: "23505", ConstraintName: "clients_active_session_idx"}
	err := wrapQueryError("create tenant", unique)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "clients_active_session_idx")

	other := errors.New("connection reset")
	assert.ErrorIs(t, wrapQueryError("op", other), other)
}
