package ledger_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/creditjambo/creditjambo/internal/accounts"
	"github.com/creditjambo/creditjambo/internal/ledger"
	"github.com/creditjambo/creditjambo/internal/memstore"
)

func newService(t *testing.T) (*ledger.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return ledger.NewService(store.Runner(), store.LedgerRepo(), store.AccountsRepo()), store
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var branch = ledger.Counterparty{Name: "Branch Teller", Account: "CASH"}

func TestDepositCreditsAndRecords(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	account := store.SeedAccount(1, money("1000"))

	txn, err := svc.Deposit(ctx, account.ID, money("250.50"), branch)
	require.NoError(t, err)
	require.Equal(t, ledger.KindDeposit, txn.Kind)
	require.Equal(t, ledger.StatusCompleted, txn.Status)
	require.Equal(t, "Branch Teller", txn.CounterpartyName)
	require.True(t, strings.HasPrefix(txn.Reference, "REF-"))
	require.True(t, store.Accounts[account.ID].Balance.Equal(money("1250.50")))
}

func TestDepositUnknownAccount(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Deposit(context.Background(), 404, money("10"), branch)
	require.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	svc, store := newService(t)
	account := store.SeedAccount(1, money("1000"))

	_, err := svc.Deposit(context.Background(), account.ID, money("0"), branch)
	require.ErrorIs(t, err, accounts.ErrInvalidAmount)
	_, err = svc.Deposit(context.Background(), account.ID, money("-5"), branch)
	require.ErrorIs(t, err, accounts.ErrInvalidAmount)
	require.Empty(t, store.Transactions)
}

func TestWithdrawDebits(t *testing.T) {
	svc, store := newService(t)
	account := store.SeedAccount(1, money("1000"))

	txn, err := svc.Withdraw(context.Background(), account.ID, money("400"), branch)
	require.NoError(t, err)
	require.Equal(t, ledger.KindWithdrawal, txn.Kind)
	require.True(t, store.Accounts[account.ID].Balance.Equal(money("600")))
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	svc, store := newService(t)
	account := store.SeedAccount(1, money("30000"))

	_, err := svc.Withdraw(context.Background(), account.ID, money("50000"), branch)
	require.ErrorIs(t, err, accounts.ErrInsufficientFunds)

	// The failed attempt leaves no trace: balance intact, ledger empty.
	require.True(t, store.Accounts[account.ID].Balance.Equal(money("30000")))
	require.Empty(t, store.Transactions)
}

func TestWithdrawRollsBackWhenDebitFails(t *testing.T) {
	svc, store := newService(t)
	account := store.SeedAccount(1, money("1000"))

	boom := errors.New("accounts table unavailable")
	store.FailOn["accounts.Debit"] = boom

	_, err := svc.Withdraw(context.Background(), account.ID, money("400"), branch)
	require.ErrorIs(t, err, boom)
	require.Empty(t, store.Transactions, "ledger entry must not survive the rollback")
	require.True(t, store.Accounts[account.ID].Balance.Equal(money("1000")))
}

func TestUpdateStatusTransitions(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	account := store.SeedAccount(1, money("1000"))

	txn, err := svc.Deposit(ctx, account.ID, money("100"), branch)
	require.NoError(t, err)

	// Completed entries may only be reversed.
	_, err = svc.UpdateStatus(ctx, txn.ID, ledger.StatusPending)
	require.ErrorIs(t, err, ledger.ErrInvalidTransition)
	_, err = svc.UpdateStatus(ctx, txn.ID, ledger.StatusFailed)
	require.ErrorIs(t, err, ledger.ErrInvalidTransition)

	reversed, err := svc.UpdateStatus(ctx, txn.ID, ledger.StatusReversed)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusReversed, reversed.Status)

	// Reversed is terminal.
	_, err = svc.UpdateStatus(ctx, txn.ID, ledger.StatusCompleted)
	require.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestUpdateStatusSettlesPendingEntry(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	account := store.SeedAccount(1, money("0"))

	txn, err := store.LedgerRepo().Append(ctx, ledger.AppendInput{
		AccountID:    account.ID,
		Kind:         ledger.KindDeposit,
		Amount:       money("75"),
		Status:       ledger.StatusPending,
		Counterparty: branch,
	})
	require.NoError(t, err)

	settled, err := svc.UpdateStatus(ctx, txn.ID, ledger.StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCompleted, settled.Status)

	failed, err := store.LedgerRepo().Append(ctx, ledger.AppendInput{
		AccountID:    account.ID,
		Kind:         ledger.KindDeposit,
		Amount:       money("75"),
		Status:       ledger.StatusPending,
		Counterparty: branch,
	})
	require.NoError(t, err)
	got, err := svc.UpdateStatus(ctx, failed.ID, ledger.StatusFailed)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusFailed, got.Status)

	// Failed is terminal.
	_, err = svc.UpdateStatus(ctx, failed.ID, ledger.StatusCompleted)
	require.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestListByAccount(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	account := store.SeedAccount(1, money("1000"))

	_, err := svc.Deposit(ctx, account.ID, money("10"), branch)
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, account.ID, money("5"), branch)
	require.NoError(t, err)

	out, err := svc.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	// Newest first.
	require.Equal(t, ledger.KindWithdrawal, out[0].Kind)

	_, err = svc.ListByAccount(ctx, 404)
	require.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestNewReferencePrefixes(t *testing.T) {
	disb := ledger.NewReference(ledger.KindDisbursement)
	require.True(t, strings.HasPrefix(disb, "DISB-"))
	require.Len(t, disb, len("DISB-")+10)

	for _, kind := range []ledger.Kind{ledger.KindDeposit, ledger.KindWithdrawal, ledger.KindRepayment} {
		ref := ledger.NewReference(kind)
		require.True(t, strings.HasPrefix(ref, "REF-"))
		require.Len(t, ref, len("REF-")+10)
		require.Equal(t, strings.ToUpper(ref), ref)
	}

	require.NotEqual(t, ledger.NewReference(ledger.KindDeposit), ledger.NewReference(ledger.KindDeposit))
}
