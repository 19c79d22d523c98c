package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/propertyhub/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// The PgError stays in the chain so callers can still inspect the constraint.
		case "23505": // unique_violation
			return fmt.Errorf("%w: %w", models.ErrConflict, pgErr)
		case "23503", "23502", "23514": // foreign_key, not_null, check
			return fmt.Errorf("%w: %w", models.ErrValidation, pgErr)
		}
	}

	return err
}

// IsUniqueViolation reports whether err is a unique violation on the named constraint.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// WithTransaction runs fn inside a transaction, committing on nil error and rolling back otherwise.
func WithTransaction(ctx context.Context, q Querier, fn func(pgx.Tx) error) (err error) {
	tx, err := q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(tx)
	return err
}
