package credit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/creditjambo/creditjambo/internal/credit"
	"github.com/creditjambo/creditjambo/internal/ledger"
	"github.com/creditjambo/creditjambo/internal/loans"
	"github.com/creditjambo/creditjambo/internal/memstore"
)

func newService(t *testing.T, schedule bool) (*credit.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	svc := credit.NewService(store.Runner(), store.CreditRepo(), store.AccountsRepo(),
		store.LedgerRepo(), store.LoansRepo(), schedule)
	return svc, store
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTotalRepayable(t *testing.T) {
	cases := []struct {
		amount string
		months int
		want   string
	}{
		{"100000", 6, "109000"},
		{"100000", 12, "118000"},
		{"50000", 3, "52250"},
		{"1000", 1, "1015"},
	}
	for _, tc := range cases {
		got := credit.TotalRepayable(money(tc.amount), tc.months)
		require.True(t, got.Equal(money(tc.want)),
			"TotalRepayable(%s, %d) = %s, want %s", tc.amount, tc.months, got, tc.want)
	}
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	svc, store := newService(t, true)
	account := store.SeedAccount(1, money("0"))

	req, err := svc.Submit(context.Background(), credit.SubmitInput{
		AccountID:      account.ID,
		Amount:         money("100000"),
		DurationMonths: 6,
		Purpose:        "stock purchase",
		DeclaredIncome: money("45000"),
	})
	require.NoError(t, err)
	require.Equal(t, credit.RequestPending, req.Status)
	require.Nil(t, req.ApproverID)
}

func TestSubmitRejectsInvalidTerms(t *testing.T) {
	svc, store := newService(t, true)
	account := store.SeedAccount(1, money("0"))

	_, err := svc.Submit(context.Background(), credit.SubmitInput{
		AccountID: account.ID, Amount: money("-5"), DurationMonths: 6,
	})
	require.ErrorIs(t, err, credit.ErrInvalidLoanTerms)

	_, err = svc.Submit(context.Background(), credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 0,
	})
	require.ErrorIs(t, err, credit.ErrInvalidLoanTerms)
}

func TestSubmitBlockedByActiveLoan(t *testing.T) {
	svc, store := newService(t, true)
	account := store.SeedAccount(1, money("0"))
	store.SeedLoan(account.ID, money("20000"), money("21800"), 6)

	_, err := svc.Submit(context.Background(), credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 6,
	})
	require.ErrorIs(t, err, credit.ErrActiveLoanExists)
}

func TestApproveDisbursesAtomically(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()
	account := store.SeedAccount(1, money("0"))

	req, err := svc.Submit(ctx, credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 6,
	})
	require.NoError(t, err)

	result, err := svc.Decide(ctx, req.ID, credit.DecisionApprove, 99)
	require.NoError(t, err)
	require.Equal(t, credit.RequestApproved, result.Request.Status)
	require.NotNil(t, result.Loan)

	loan := *result.Loan
	require.Equal(t, loans.StatusActive, loan.Status)
	require.True(t, loan.TotalRepayable.Equal(money("109000")))
	require.True(t, loan.PaidAmount.IsZero())

	// Principal landed on the balance.
	require.True(t, store.Accounts[account.ID].Balance.Equal(money("100000")))

	// Exactly one Completed Disbursement entry against the account.
	require.Len(t, store.Transactions, 1)
	for _, txn := range store.Transactions {
		require.Equal(t, ledger.KindDisbursement, txn.Kind)
		require.Equal(t, ledger.StatusCompleted, txn.Status)
		require.True(t, txn.Amount.Equal(money("100000")))
		require.Equal(t, "CreditJambo", txn.CounterpartyName)
	}

	// Six installments summing exactly to the total repayable.
	entries, err := store.LoansRepo().ListSchedule(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	sum := decimal.Zero
	for _, e := range entries {
		require.Equal(t, loans.ScheduleMissed, e.Status)
		sum = sum.Add(e.DueAmount)
	}
	require.True(t, sum.Equal(money("109000")), "schedule sums to %s", sum)
}

func TestApproveWithoutScheduleMode(t *testing.T) {
	svc, store := newService(t, false)
	ctx := context.Background()
	account := store.SeedAccount(1, money("0"))

	req, err := svc.Submit(ctx, credit.SubmitInput{
		AccountID: account.ID, Amount: money("50000"), DurationMonths: 3,
	})
	require.NoError(t, err)

	result, err := svc.Decide(ctx, req.ID, credit.DecisionApprove, 99)
	require.NoError(t, err)
	require.True(t, result.Loan.TotalRepayable.Equal(money("52250")))
	require.Empty(t, store.Schedule)
}

func TestRejectLeavesMoneyUntouched(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()
	account := store.SeedAccount(1, money("7500"))

	req, err := svc.Submit(ctx, credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 6,
	})
	require.NoError(t, err)

	result, err := svc.Decide(ctx, req.ID, credit.DecisionReject, 99)
	require.NoError(t, err)
	require.Equal(t, credit.RequestRejected, result.Request.Status)
	require.Nil(t, result.Loan)
	require.Empty(t, store.Transactions)
	require.Empty(t, store.Loans)
	require.True(t, store.Accounts[account.ID].Balance.Equal(money("7500")))
}

func TestDecideIsTerminal(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()
	account := store.SeedAccount(1, money("0"))

	req, err := svc.Submit(ctx, credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 6,
	})
	require.NoError(t, err)

	_, err = svc.Decide(ctx, req.ID, credit.DecisionReject, 99)
	require.NoError(t, err)

	// A second verdict on the same request must fail, whatever it says.
	_, err = svc.Decide(ctx, req.ID, credit.DecisionApprove, 99)
	require.ErrorIs(t, err, credit.ErrInvalidState)
	_, err = svc.Decide(ctx, req.ID, credit.DecisionReject, 99)
	require.ErrorIs(t, err, credit.ErrInvalidState)

	got, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, credit.RequestRejected, got.Status)
}

func TestApproveRollsBackWhenLoanInsertFails(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()
	account := store.SeedAccount(1, money("0"))

	req, err := svc.Submit(ctx, credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 6,
	})
	require.NoError(t, err)

	boom := errors.New("loans table unavailable")
	store.FailOn["loans.Create"] = boom

	_, err = svc.Decide(ctx, req.ID, credit.DecisionApprove, 99)
	require.ErrorIs(t, err, boom)

	// Nothing from the failed approval is observable.
	got, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, credit.RequestPending, got.Status)
	require.True(t, store.Accounts[account.ID].Balance.IsZero())
	require.Empty(t, store.Transactions)
	require.Empty(t, store.Loans)

	// The request is still decidable once the fault clears.
	delete(store.FailOn, "loans.Create")
	result, err := svc.Decide(ctx, req.ID, credit.DecisionApprove, 99)
	require.NoError(t, err)
	require.NotNil(t, result.Loan)
	require.True(t, store.Accounts[account.ID].Balance.Equal(money("100000")))
}

func TestApproveRollsBackWhenScheduleInsertFails(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()
	account := store.SeedAccount(1, money("0"))

	req, err := svc.Submit(ctx, credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 6,
	})
	require.NoError(t, err)

	boom := errors.New("repayments table unavailable")
	store.FailOn["loans.CreateSchedule"] = boom

	_, err = svc.Decide(ctx, req.ID, credit.DecisionApprove, 99)
	require.ErrorIs(t, err, boom)
	require.Empty(t, store.Loans)
	require.Empty(t, store.Transactions)
	require.True(t, store.Accounts[account.ID].Balance.IsZero())
}

func TestDisburseRequiresApproval(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()
	account := store.SeedAccount(1, money("0"))

	req, err := svc.Submit(ctx, credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 6,
	})
	require.NoError(t, err)

	_, err = svc.Disburse(ctx, req.ID, 99)
	require.ErrorIs(t, err, credit.ErrRequestNotApproved)
}

func TestDisburseTwiceFails(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()
	account := store.SeedAccount(1, money("0"))

	req, err := svc.Submit(ctx, credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 6,
	})
	require.NoError(t, err)
	_, err = svc.Decide(ctx, req.ID, credit.DecisionApprove, 99)
	require.NoError(t, err)

	_, err = svc.Disburse(ctx, req.ID, 99)
	require.ErrorIs(t, err, credit.ErrAlreadyDisbursed)
	require.Len(t, store.Transactions, 1)
	require.True(t, store.Accounts[account.ID].Balance.Equal(money("100000")))
}

func TestDisburseBlockedByActiveLoan(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()
	account := store.SeedAccount(1, money("0"))

	req, err := svc.Submit(ctx, credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 6,
	})
	require.NoError(t, err)

	// A loan lands on the account between submission and decision.
	store.SeedLoan(account.ID, money("20000"), money("21800"), 6)

	_, err = svc.Decide(ctx, req.ID, credit.DecisionApprove, 99)
	require.ErrorIs(t, err, credit.ErrActiveLoanExists)

	got, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, credit.RequestPending, got.Status)
	require.True(t, store.Accounts[account.ID].Balance.IsZero())
}

func TestDecideUnknownRequest(t *testing.T) {
	svc, _ := newService(t, true)
	_, err := svc.Decide(context.Background(), 404, credit.DecisionApprove, 99)
	require.ErrorIs(t, err, credit.ErrRequestNotFound)
}

type recordingNotifier struct {
	requests []credit.LoanRequest
	loans    []*loans.Loan
}

func (n *recordingNotifier) LoanDecided(_ context.Context, request credit.LoanRequest, loan *loans.Loan) {
	n.requests = append(n.requests, request)
	n.loans = append(n.loans, loan)
}

func TestDecideNotifiesAfterCommit(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()
	account := store.SeedAccount(1, money("0"))

	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	req, err := svc.Submit(ctx, credit.SubmitInput{
		AccountID: account.ID, Amount: money("100000"), DurationMonths: 6,
	})
	require.NoError(t, err)

	store.FailOn["loans.Create"] = errors.New("down")
	_, err = svc.Decide(ctx, req.ID, credit.DecisionApprove, 99)
	require.Error(t, err)
	require.Empty(t, notifier.requests, "failed decisions must not notify")

	delete(store.FailOn, "loans.Create")
	_, err = svc.Decide(ctx, req.ID, credit.DecisionApprove, 99)
	require.NoError(t, err)
	require.Len(t, notifier.requests, 1)
	require.Equal(t, credit.RequestApproved, notifier.requests[0].Status)
	require.NotNil(t, notifier.loans[0])
}
