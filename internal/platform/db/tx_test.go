package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsTransient(&pgconn.PgError{Code: "40P01"}))
	require.True(t, IsTransient(fmt.Errorf("run tx: %w", &pgconn.PgError{Code: "40001"})))

	require.False(t, IsTransient(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsTransient(errors.New("connection refused")))
	require.False(t, IsTransient(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	dupOwner := &pgconn.PgError{Code: "23505", ConstraintName: "savings_accounts_owner_id_key"}

	require.True(t, IsUniqueViolation(dupOwner, "savings_accounts_owner_id_key"))
	require.True(t, IsUniqueViolation(dupOwner, ""), "empty constraint matches any unique violation")
	require.False(t, IsUniqueViolation(dupOwner, "loans_request_id_key"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}, ""))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
}
