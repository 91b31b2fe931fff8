package exec

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMutationConflicts(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"unique violation", pgerrcode.UniqueViolation},
		{"foreign key violation", pgerrcode.ForeignKeyViolation},
		{"check violation", pgerrcode.CheckViolation},
		{"not null violation", pgerrcode.NotNullViolation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tc.code, Message: "boom", ConstraintName: "orders_pkey"}
			err := ClassifyMutation(pgErr)

			var gw *Error
			require.ErrorAs(t, err, &gw)
			assert.Equal(t, KindConflict, gw.Kind)
			assert.Equal(t, "orders_pkey", gw.Constraint)
			assert.ErrorIs(t, err, pgErr)
		})
	}
}

func TestClassifyMutationOtherErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.DivisionByZero, Message: "division by zero"}
	assert.Equal(t, KindDataMutation, KindOf(ClassifyMutation(pgErr)))

	plain := errors.New("connection reset")
	assert.Equal(t, KindDataMutation, KindOf(ClassifyMutation(plain)))

	assert.Nil(t, ClassifyMutation(nil))
}

func TestClassifyMutationPassesThroughClassified(t *testing.T) {
	orig := NotFoundf("no such row")
	err := ClassifyMutation(fmt.Errorf("wrapped: %w", orig))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindConflict, Message: "duplicate", Constraint: "users_email_key"}
	assert.Equal(t, "CONFLICT: duplicate (constraint users_email_key)", err.Error())

	arg := Argumentf("missing %s", "id")
	assert.Equal(t, "ARGUMENT_ERROR: missing id", arg.Error())
}
