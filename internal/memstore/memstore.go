// Package memstore is an in-memory implementation of the repository
// interfaces used by service tests. Its transaction runner snapshots
// the whole store before the callback and restores it on error, so
// rollback behavior can be asserted without a database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/creditjambo/creditjambo/internal/accounts"
	"github.com/creditjambo/creditjambo/internal/credit"
	"github.com/creditjambo/creditjambo/internal/ledger"
	"github.com/creditjambo/creditjambo/internal/loans"
	"github.com/creditjambo/creditjambo/internal/platform/db"
)

// Store holds all tables. Not safe for concurrent use; tests drive it
// sequentially, which is exactly the serialization the row locks
// guarantee in production.
type Store struct {
	Accounts     map[int64]accounts.Account
	Transactions map[int64]ledger.Transaction
	Requests     map[int64]credit.LoanRequest
	Loans        map[int64]loans.Loan
	Schedule     map[int64]loans.ScheduleEntry

	nextAccount     int64
	nextTransaction int64
	nextRequest     int64
	nextLoan        int64
	nextInstallment int64

	// FailOn injects an error for a named operation, e.g. "loans.Create".
	FailOn map[string]error
}

func New() *Store {
	return &Store{
		Accounts:     make(map[int64]accounts.Account),
		Transactions: make(map[int64]ledger.Transaction),
		Requests:     make(map[int64]credit.LoanRequest),
		Loans:        make(map[int64]loans.Loan),
		Schedule:     make(map[int64]loans.ScheduleEntry),
		FailOn:       make(map[string]error),
	}
}

func (s *Store) fail(op string) error {
	return s.FailOn[op]
}

// SeedAccount inserts an account with the given balance.
func (s *Store) SeedAccount(ownerID int64, balance decimal.Decimal) accounts.Account {
	s.nextAccount++
	a := accounts.Account{
		ID:        s.nextAccount,
		OwnerID:   ownerID,
		Number:    fmt.Sprintf("%010d", 1000000+s.nextAccount),
		Balance:   balance,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	s.Accounts[a.ID] = a
	return a
}

// SeedLoan inserts an Active loan and its backing request.
func (s *Store) SeedLoan(accountID int64, principal, total decimal.Decimal, months int) loans.Loan {
	s.nextRequest++
	req := credit.LoanRequest{
		ID:             s.nextRequest,
		AccountID:      accountID,
		Amount:         principal,
		DurationMonths: months,
		Purpose:        "seed",
		Status:         credit.RequestApproved,
		RequestedAt:    time.Now().UTC(),
	}
	s.Requests[req.ID] = req

	s.nextLoan++
	now := time.Now().UTC()
	l := loans.Loan{
		ID:             s.nextLoan,
		RequestID:      req.ID,
		AccountID:      accountID,
		Principal:      principal,
		TotalRepayable: total,
		PaidAmount:     decimal.Zero,
		DisbursedAt:    now,
		DueDate:        now.AddDate(0, months, 0),
		Status:         loans.StatusActive,
	}
	s.Loans[l.ID] = l
	return l
}

// SeedSchedule creates installment rows for a seeded loan.
func (s *Store) SeedSchedule(loanID int64, entries []loans.ScheduleInput) {
	for _, e := range entries {
		s.nextInstallment++
		s.Schedule[s.nextInstallment] = loans.ScheduleEntry{
			ID:            s.nextInstallment,
			LoanID:        loanID,
			ScheduledDate: e.ScheduledDate,
			DueAmount:     e.DueAmount,
			PaidAmount:    decimal.Zero,
			Status:        loans.ScheduleMissed,
		}
	}
}

type snapshot struct {
	accounts     map[int64]accounts.Account
	transactions map[int64]ledger.Transaction
	requests     map[int64]credit.LoanRequest
	loans        map[int64]loans.Loan
	schedule     map[int64]loans.ScheduleEntry

	nextAccount, nextTransaction, nextRequest, nextLoan, nextInstallment int64
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		accounts:        copyMap(s.Accounts),
		transactions:    copyMap(s.Transactions),
		requests:        copyMap(s.Requests),
		loans:           copyMap(s.Loans),
		schedule:        copyMap(s.Schedule),
		nextAccount:     s.nextAccount,
		nextTransaction: s.nextTransaction,
		nextRequest:     s.nextRequest,
		nextLoan:        s.nextLoan,
		nextInstallment: s.nextInstallment,
	}
}

func (s *Store) restore(snap snapshot) {
	s.Accounts = snap.accounts
	s.Transactions = snap.transactions
	s.Requests = snap.requests
	s.Loans = snap.loans
	s.Schedule = snap.schedule
	s.nextAccount = snap.nextAccount
	s.nextTransaction = snap.nextTransaction
	s.nextRequest = snap.nextRequest
	s.nextLoan = snap.nextLoan
	s.nextInstallment = snap.nextInstallment
}

// Runner returns a TxRunner whose rollback restores the pre-transaction
// state of the whole store.
func (s *Store) Runner() db.TxRunner {
	return runner{s: s}
}

type runner struct {
	s *Store
}

func (r runner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	snap := r.s.snapshot()
	if err := fn(nil); err != nil {
		r.s.restore(snap)
		return err
	}
	return nil
}

// AccountsRepo returns the accounts.Repository view of the store.
func (s *Store) AccountsRepo() accounts.Repository { return &accountsRepo{s: s} }

type accountsRepo struct {
	s *Store
}

func (r *accountsRepo) WithTx(tx pgx.Tx) accounts.Repository { return r }

func (r *accountsRepo) Create(ctx context.Context, ownerID int64) (accounts.Account, error) {
	if err := r.s.fail("accounts.Create"); err != nil {
		return accounts.Account{}, err
	}
	for _, a := range r.s.Accounts {
		if a.OwnerID == ownerID {
			return accounts.Account{}, accounts.ErrOwnerHasAccount
		}
	}
	return r.s.SeedAccount(ownerID, decimal.Zero), nil
}

func (r *accountsRepo) Get(ctx context.Context, id int64) (accounts.Account, error) {
	a, ok := r.s.Accounts[id]
	if !ok {
		return accounts.Account{}, accounts.ErrAccountNotFound
	}
	return a, nil
}

func (r *accountsRepo) GetByOwner(ctx context.Context, ownerID int64) (accounts.Account, error) {
	for _, a := range r.s.Accounts {
		if a.OwnerID == ownerID {
			return a, nil
		}
	}
	return accounts.Account{}, accounts.ErrAccountNotFound
}

func (r *accountsRepo) GetForUpdate(ctx context.Context, id int64) (accounts.Account, error) {
	return r.Get(ctx, id)
}

func (r *accountsRepo) Credit(ctx context.Context, id int64, amount decimal.Decimal) error {
	if err := r.s.fail("accounts.Credit"); err != nil {
		return err
	}
	a, ok := r.s.Accounts[id]
	if !ok {
		return accounts.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(amount)
	r.s.Accounts[id] = a
	return nil
}

func (r *accountsRepo) Debit(ctx context.Context, id int64, amount decimal.Decimal) error {
	if err := r.s.fail("accounts.Debit"); err != nil {
		return err
	}
	a, ok := r.s.Accounts[id]
	if !ok {
		return accounts.ErrAccountNotFound
	}
	if a.Balance.LessThan(amount) {
		return accounts.ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	r.s.Accounts[id] = a
	return nil
}

// LedgerRepo returns the ledger.Repository view of the store.
func (s *Store) LedgerRepo() ledger.Repository { return &ledgerRepo{s: s} }

type ledgerRepo struct {
	s *Store
}

func (r *ledgerRepo) WithTx(tx pgx.Tx) ledger.Repository { return r }

func (r *ledgerRepo) Append(ctx context.Context, input ledger.AppendInput) (ledger.Transaction, error) {
	if err := r.s.fail("ledger.Append"); err != nil {
		return ledger.Transaction{}, err
	}
	r.s.nextTransaction++
	t := ledger.Transaction{
		ID:                  r.s.nextTransaction,
		AccountID:           input.AccountID,
		Kind:                input.Kind,
		Amount:              input.Amount,
		Status:              input.Status,
		Reference:           ledger.NewReference(input.Kind),
		CounterpartyName:    input.Counterparty.Name,
		CounterpartyAccount: input.Counterparty.Account,
		OccurredAt:          time.Now().UTC(),
	}
	r.s.Transactions[t.ID] = t
	return t, nil
}

func (r *ledgerRepo) Get(ctx context.Context, id int64) (ledger.Transaction, error) {
	t, ok := r.s.Transactions[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return t, nil
}

func (r *ledgerRepo) GetForUpdate(ctx context.Context, id int64) (ledger.Transaction, error) {
	return r.Get(ctx, id)
}

func (r *ledgerRepo) ListByAccount(ctx context.Context, accountID int64) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, t := range r.s.Transactions {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *ledgerRepo) SetStatus(ctx context.Context, id int64, from, to ledger.Status) error {
	t, ok := r.s.Transactions[id]
	if !ok || t.Status != from {
		return ledger.ErrInvalidTransition
	}
	t.Status = to
	r.s.Transactions[id] = t
	return nil
}

// CreditRepo returns the credit.Repository view of the store.
func (s *Store) CreditRepo() credit.Repository { return &creditRepo{s: s} }

type creditRepo struct {
	s *Store
}

func (r *creditRepo) WithTx(tx pgx.Tx) credit.Repository { return r }

func (r *creditRepo) Create(ctx context.Context, input credit.SubmitInput) (credit.LoanRequest, error) {
	if err := r.s.fail("credit.Create"); err != nil {
		return credit.LoanRequest{}, err
	}
	r.s.nextRequest++
	lr := credit.LoanRequest{
		ID:             r.s.nextRequest,
		AccountID:      input.AccountID,
		Amount:         input.Amount,
		DurationMonths: input.DurationMonths,
		Purpose:        input.Purpose,
		DeclaredIncome: input.DeclaredIncome,
		Status:         credit.RequestPending,
		RequestedAt:    time.Now().UTC(),
	}
	r.s.Requests[lr.ID] = lr
	return lr, nil
}

func (r *creditRepo) Get(ctx context.Context, id int64) (credit.LoanRequest, error) {
	lr, ok := r.s.Requests[id]
	if !ok {
		return credit.LoanRequest{}, credit.ErrRequestNotFound
	}
	return lr, nil
}

func (r *creditRepo) GetForUpdate(ctx context.Context, id int64) (credit.LoanRequest, error) {
	return r.Get(ctx, id)
}

func (r *creditRepo) ListByStatus(ctx context.Context, status credit.RequestStatus) ([]credit.LoanRequest, error) {
	var out []credit.LoanRequest
	for _, lr := range r.s.Requests {
		if lr.Status == status {
			out = append(out, lr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *creditRepo) ListByAccount(ctx context.Context, accountID int64) ([]credit.LoanRequest, error) {
	var out []credit.LoanRequest
	for _, lr := range r.s.Requests {
		if lr.AccountID == accountID {
			out = append(out, lr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *creditRepo) SetDecision(ctx context.Context, id int64, status credit.RequestStatus, approverID int64) error {
	lr, ok := r.s.Requests[id]
	if !ok || lr.Status != credit.RequestPending {
		return credit.ErrInvalidState
	}
	lr.Status = status
	lr.ApproverID = &approverID
	r.s.Requests[id] = lr
	return nil
}

// LoansRepo returns the loans.Repository view of the store.
func (s *Store) LoansRepo() loans.Repository { return &loansRepo{s: s} }

type loansRepo struct {
	s *Store
}

func (r *loansRepo) WithTx(tx pgx.Tx) loans.Repository { return r }

func (r *loansRepo) Create(ctx context.Context, input loans.CreateInput) (loans.Loan, error) {
	if err := r.s.fail("loans.Create"); err != nil {
		return loans.Loan{}, err
	}
	for _, l := range r.s.Loans {
		if l.RequestID == input.RequestID {
			return loans.Loan{}, &pgconn.PgError{Code: "23505", ConstraintName: "loans_request_id_key"}
		}
		if l.AccountID == input.AccountID && l.Status == loans.StatusActive {
			return loans.Loan{}, &pgconn.PgError{Code: "23505", ConstraintName: "loans_one_active_per_account"}
		}
	}
	r.s.nextLoan++
	now := time.Now().UTC()
	l := loans.Loan{
		ID:             r.s.nextLoan,
		RequestID:      input.RequestID,
		AccountID:      input.AccountID,
		Principal:      input.Principal,
		TotalRepayable: input.TotalRepayable,
		PaidAmount:     decimal.Zero,
		DisbursedAt:    now,
		DueDate:        input.DueDate,
		Status:         loans.StatusActive,
		ApproverID:     input.ApproverID,
		TransactionID:  input.TransactionID,
	}
	r.s.Loans[l.ID] = l
	return l, nil
}

func (r *loansRepo) Get(ctx context.Context, id int64) (loans.Loan, error) {
	l, ok := r.s.Loans[id]
	if !ok {
		return loans.Loan{}, loans.ErrLoanNotFound
	}
	return l, nil
}

func (r *loansRepo) GetForUpdate(ctx context.Context, id int64) (loans.Loan, error) {
	return r.Get(ctx, id)
}

func (r *loansRepo) GetByRequest(ctx context.Context, requestID int64) (loans.Loan, error) {
	for _, l := range r.s.Loans {
		if l.RequestID == requestID {
			return l, nil
		}
	}
	return loans.Loan{}, loans.ErrLoanNotFound
}

func (r *loansRepo) ActiveByAccount(ctx context.Context, accountID int64) (loans.Loan, error) {
	for _, l := range r.s.Loans {
		if l.AccountID == accountID && l.Status == loans.StatusActive {
			return l, nil
		}
	}
	return loans.Loan{}, loans.ErrLoanNotFound
}

func (r *loansRepo) ApplyPayment(ctx context.Context, id int64, amount decimal.Decimal) (loans.Loan, error) {
	if err := r.s.fail("loans.ApplyPayment"); err != nil {
		return loans.Loan{}, err
	}
	l, ok := r.s.Loans[id]
	if !ok {
		return loans.Loan{}, loans.ErrLoanNotFound
	}
	l.PaidAmount = l.PaidAmount.Add(amount)
	if l.PaidAmount.GreaterThanOrEqual(l.TotalRepayable) {
		l.Status = loans.StatusPaid
	}
	r.s.Loans[id] = l
	return l, nil
}

func (r *loansRepo) SetStatus(ctx context.Context, id int64, status loans.Status) error {
	l, ok := r.s.Loans[id]
	if !ok {
		return loans.ErrLoanNotFound
	}
	l.Status = status
	r.s.Loans[id] = l
	return nil
}

func (r *loansRepo) CreateSchedule(ctx context.Context, loanID int64, entries []loans.ScheduleInput) error {
	if err := r.s.fail("loans.CreateSchedule"); err != nil {
		return err
	}
	r.s.SeedSchedule(loanID, entries)
	return nil
}

func (r *loansRepo) ListSchedule(ctx context.Context, loanID int64) ([]loans.ScheduleEntry, error) {
	var out []loans.ScheduleEntry
	for _, e := range r.s.Schedule {
		if e.LoanID == loanID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (r *loansRepo) EarliestUnpaid(ctx context.Context, loanID int64) (loans.ScheduleEntry, error) {
	entries, _ := r.ListSchedule(ctx, loanID)
	for _, e := range entries {
		if e.Status == loans.ScheduleMissed {
			return e, nil
		}
	}
	return loans.ScheduleEntry{}, loans.ErrNoUnpaidInstallment
}

func (r *loansRepo) MarkInstallmentPaid(ctx context.Context, id int64, amount decimal.Decimal, transactionID int64, paidAt time.Time) error {
	e, ok := r.s.Schedule[id]
	if !ok || e.Status != loans.ScheduleMissed {
		return loans.ErrNoUnpaidInstallment
	}
	e.PaidAmount = amount
	e.Status = loans.SchedulePaid
	e.TransactionID = &transactionID
	e.PaidDate = &paidAt
	r.s.Schedule[id] = e
	return nil
}
