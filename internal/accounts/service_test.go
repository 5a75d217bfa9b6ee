package accounts_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/creditjambo/creditjambo/internal/accounts"
	"github.com/creditjambo/creditjambo/internal/memstore"
)

func newService(t *testing.T) (*accounts.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return accounts.NewService(store.AccountsRepo()), store
}

func TestOpenAccount(t *testing.T) {
	svc, _ := newService(t)

	account, err := svc.Open(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, account.Number, 10, "account numbers are zero-padded to ten digits")
	require.True(t, account.Balance.IsZero())
	require.True(t, account.Active)
}

func TestOpenOnePerOwner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Open(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Open(ctx, 1)
	require.ErrorIs(t, err, accounts.ErrOwnerHasAccount)

	got, err := svc.GetByOwner(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
}

func TestOpenAssignsDistinctNumbers(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Open(ctx, 1)
	require.NoError(t, err)
	b, err := svc.Open(ctx, 2)
	require.NoError(t, err)
	require.NotEqual(t, a.Number, b.Number)
}

func TestGetMissingAccount(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Get(context.Background(), 404)
	require.ErrorIs(t, err, accounts.ErrAccountNotFound)
	_, err = svc.GetByOwner(context.Background(), 404)
	require.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestBalancePrimitives(t *testing.T) {
	_, store := newService(t)
	ctx := context.Background()
	repo := store.AccountsRepo()
	account := store.SeedAccount(1, decimal.RequireFromString("100"))

	require.NoError(t, repo.Credit(ctx, account.ID, decimal.RequireFromString("50")))
	require.NoError(t, repo.Debit(ctx, account.ID, decimal.RequireFromString("150")))

	got, err := repo.Get(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())

	// The balance can reach zero but never cross it.
	err = repo.Debit(ctx, account.ID, decimal.RequireFromString("0.01"))
	require.ErrorIs(t, err, accounts.ErrInsufficientFunds)
}
