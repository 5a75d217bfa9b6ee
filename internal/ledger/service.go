package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/creditjambo/creditjambo/internal/accounts"
	"github.com/creditjambo/creditjambo/internal/platform/db"
)

// Service owns the transaction ledger and the deposit/withdraw
// operations. Each operation appends the ledger entry and mutates the
// balance in one transaction, with the account row locked first so the
// sufficient-balance check cannot be invalidated by a concurrent writer.
type Service struct {
	tx       db.TxRunner
	repo     Repository
	accounts accounts.Repository
}

func NewService(tx db.TxRunner, repo Repository, accountsRepo accounts.Repository) *Service {
	return &Service{tx: tx, repo: repo, accounts: accountsRepo}
}

// Deposit credits an account and records a Completed Deposit entry.
func (s *Service) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal, from Counterparty) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, accounts.ErrInvalidAmount
	}

	var txn Transaction
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		accountsTx := s.accounts.WithTx(tx)
		if _, err := accountsTx.GetForUpdate(ctx, accountID); err != nil {
			return err
		}

		var err error
		txn, err = s.repo.WithTx(tx).Append(ctx, AppendInput{
			AccountID:    accountID,
			Kind:         KindDeposit,
			Amount:       amount,
			Status:       StatusCompleted,
			Counterparty: from,
		})
		if err != nil {
			return err
		}
		return accountsTx.Credit(ctx, accountID, amount)
	})
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// Withdraw debits an account and records a Completed Withdrawal entry.
// Fails with accounts.ErrInsufficientFunds before anything is written
// when the locked balance cannot cover the amount.
func (s *Service) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal, to Counterparty) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, accounts.ErrInvalidAmount
	}

	var txn Transaction
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		accountsTx := s.accounts.WithTx(tx)
		account, err := accountsTx.GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(amount) {
			return accounts.ErrInsufficientFunds
		}

		txn, err = s.repo.WithTx(tx).Append(ctx, AppendInput{
			AccountID:    accountID,
			Kind:         KindWithdrawal,
			Amount:       amount,
			Status:       StatusCompleted,
			Counterparty: to,
		})
		if err != nil {
			return err
		}
		return accountsTx.Debit(ctx, accountID, amount)
	})
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// UpdateStatus applies a settlement transition. Allowed transitions are
// Pending to Completed or Failed, and Completed to Reversed.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status) (Transaction, error) {
	var txn Transaction
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		repoTx := s.repo.WithTx(tx)
		current, err := repoTx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !validTransition(current.Status, to) {
			return ErrInvalidTransition
		}
		if err := repoTx.SetStatus(ctx, id, current.Status, to); err != nil {
			return err
		}
		txn = current
		txn.Status = to
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByAccount(ctx context.Context, accountID int64) ([]Transaction, error) {
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListByAccount(ctx, accountID)
}
