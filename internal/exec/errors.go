package exec

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies gateway errors so resolvers can surface a machine-readable
// code in the GraphQL errors array.
type Kind string

const (
	KindArgument     Kind = "ARGUMENT_ERROR"
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindDataMutation Kind = "DATA_MUTATION_ERROR"
	KindSchema       Kind = "SCHEMA_ERROR"
	KindSubscription Kind = "SUBSCRIPTION_ERROR"
)

// Error is a classified gateway error.
type Error struct {
	Kind       Kind
	Message    string
	Constraint string
	cause      error
}

func (e *Error) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: %s (constraint %s)", e.Kind, e.Message, e.Constraint)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Argumentf creates an argument error; returned to the client, never retried.
func Argumentf(format string, args ...any) *Error {
	return &Error{Kind: KindArgument, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a not-found error for an addressed row that does not exist.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Schemaf creates a schema error for catalog-level failures.
func Schemaf(format string, args ...any) *Error {
	return &Error{Kind: KindSchema, Message: fmt.Sprintf(format, args...)}
}

// Subscriptionf creates a subscription stream error.
func Subscriptionf(format string, args ...any) *Error {
	return &Error{Kind: KindSubscription, Message: fmt.Sprintf(format, args...)}
}

// ClassifyMutation maps a database error from a write into the gateway
// taxonomy: integrity violations become conflicts carrying the constraint
// name, everything else becomes a data-mutation error wrapping the driver
// message. Already-classified errors pass through.
func ClassifyMutation(err error) error {
	if err == nil {
		return nil
	}

	var gw *Error
	if errors.As(err, &gw) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation,
			pgerrcode.ForeignKeyViolation,
			pgerrcode.CheckViolation,
			pgerrcode.ExclusionViolation,
			pgerrcode.NotNullViolation:
			return &Error{
				Kind:       KindConflict,
				Message:    pgErr.Message,
				Constraint: pgErr.ConstraintName,
				cause:      err,
			}
		}
		return &Error{Kind: KindDataMutation, Message: pgErr.Message, cause: err}
	}

	return &Error{Kind: KindDataMutation, Message: err.Error(), cause: err}
}

// KindOf extracts the gateway error kind, defaulting to DataMutation for
// unclassified errors.
func KindOf(err error) Kind {
	var gw *Error
	if errors.As(err, &gw) {
		return gw.Kind
	}
	return KindDataMutation
}
