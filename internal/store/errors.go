package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sadaqah/roundup-service/internal/domain"
)

// Error carries a classified storage failure. Kind is one of the domain sentinels and
// is what callers match on; Err keeps the driver detail for server-side logs.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

var passthrough = []error{
	domain.ErrNotFound,
	domain.ErrInvalidRequest,
	domain.ErrInvalidTransition,
	domain.ErrConflict,
	domain.ErrNothingToDonate,
	domain.ErrCharityNotZakatReady,
	domain.ErrStorageTimeout,
	domain.ErrStorage,
}

// classify maps a pgx / context error onto the domain taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	for _, known := range passthrough {
		if errors.Is(err, known) {
			return err
		}
	}

	kind := domain.ErrStorage
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		kind = domain.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		kind = domain.ErrStorageTimeout
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			kind = kindForCode(pgErr.Code)
		}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func kindForCode(code string) error {
	switch {
	case code == "23505":
		return domain.ErrConflict
	case code == "57014":
		// statement_timeout / canceled by the deadline
		return domain.ErrStorageTimeout
	case len(code) == 5 && (code[:2] == "22" || code[:2] == "23"):
		// data exception / integrity constraint: the client sent a bad value
		return domain.ErrInvalidRequest
	default:
		return domain.ErrStorage
	}
}
