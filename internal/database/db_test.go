package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/propertyhub/internal/models"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantIs  error
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "no rows", err: pgx.ErrNoRows, wantIs: models.ErrNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), wantIs: models.ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "listings_slug_key"}, wantIs: models.ErrConflict},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, wantIs: models.ErrValidation},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, wantIs: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPostgresError(tt.err)
			if tt.wantNil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.wantIs)
		})
	}

	other := errors.New("connection reset")
	assert.Same(t, other, MapPostgresError(other))
}

func TestIsUniqueViolation_SurvivesMapping(t *testing.T) {
	err := MapPostgresError(&pgconn.PgError{Code: "23505", ConstraintName: "listings_slug_key"})

	assert.True(t, IsUniqueViolation(err, "listings_slug_key"))
	assert.True(t, IsUniqueViolation(err, ""))
	assert.False(t, IsUniqueViolation(err, "users_email_key"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestWithTransaction_Commits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE listings").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = WithTransaction(context.Background(), mock, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "UPDATE listings SET title = 'x'")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = WithTransaction(context.Background(), mock, func(pgx.Tx) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_CommitFailureIsReturned(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err = WithTransaction(context.Background(), mock, func(pgx.Tx) error { return nil })

	assert.ErrorContains(t, err, "serialization failure")
}
