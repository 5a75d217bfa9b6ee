package loans

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/creditjambo/creditjambo/internal/accounts"
	"github.com/creditjambo/creditjambo/internal/ledger"
	"github.com/creditjambo/creditjambo/internal/platform/db"
)

// Notifier delivers post-commit repayment notifications. Implementations
// must never fail the calling operation.
type Notifier interface {
	RepaymentReceived(ctx context.Context, loan Loan, txn ledger.Transaction)
}

// RepayResult is returned from a successful repayment.
type RepayResult struct {
	Loan        Loan               `json:"loan"`
	Transaction ledger.Transaction `json:"transaction"`
}

// Service owns the loan record and the repayment processor. One
// processor serves both tenants: schedule-based tracking is switched on
// per deployment and running-total accounting on the loan row happens in
// both modes.
type Service struct {
	tx       db.TxRunner
	repo     Repository
	accounts accounts.Repository
	ledger   ledger.Repository
	schedule bool
	notifier Notifier
}

func NewService(tx db.TxRunner, repo Repository, accountsRepo accounts.Repository, ledgerRepo ledger.Repository, schedule bool) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		accounts: accountsRepo,
		ledger:   ledgerRepo,
		schedule: schedule,
	}
}

// SetNotifier injects the post-commit notification hook.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) Get(ctx context.Context, id int64) (Loan, error) {
	return s.repo.Get(ctx, id)
}

// ActiveLoan reports whether the account currently has an Active loan.
// This predicate gates new credit applications.
func (s *Service) ActiveLoan(ctx context.Context, accountID int64) (Loan, bool, error) {
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return Loan{}, false, err
	}
	loan, err := s.repo.ActiveByAccount(ctx, accountID)
	if errors.Is(err, ErrLoanNotFound) {
		return Loan{}, false, nil
	}
	if err != nil {
		return Loan{}, false, err
	}
	return loan, true, nil
}

func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (Loan, error) {
	var loan Loan
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		repoTx := s.repo.WithTx(tx)
		if _, err := repoTx.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if err := repoTx.SetStatus(ctx, id, status); err != nil {
			return err
		}
		var err error
		loan, err = repoTx.Get(ctx, id)
		return err
	})
	if err != nil {
		return Loan{}, err
	}
	return loan, nil
}

func (s *Service) Schedule(ctx context.Context, loanID int64) ([]ScheduleEntry, error) {
	if _, err := s.repo.Get(ctx, loanID); err != nil {
		return nil, err
	}
	return s.repo.ListSchedule(ctx, loanID)
}

// Repay applies a payment against a loan. The account debit, the
// Repayment ledger entry, the loan update and the installment update all
// commit together or not at all. The account row is locked before the
// balance check and the loan row before the overpayment check, so
// concurrent repayments serialize and can never overpay the loan.
func (s *Service) Repay(ctx context.Context, accountID, loanID int64, amount decimal.Decimal) (RepayResult, error) {
	if !amount.IsPositive() {
		return RepayResult{}, accounts.ErrInvalidAmount
	}

	var result RepayResult
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		accountsTx := s.accounts.WithTx(tx)
		repoTx := s.repo.WithTx(tx)

		account, err := accountsTx.GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		loan, err := repoTx.GetForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.AccountID != account.ID {
			return ErrLoanNotFound
		}
		if account.Balance.LessThan(amount) {
			return accounts.ErrInsufficientFunds
		}
		if amount.GreaterThan(loan.Outstanding()) {
			return ErrOverPayment
		}

		if err := accountsTx.Debit(ctx, accountID, amount); err != nil {
			return err
		}
		txn, err := s.ledger.WithTx(tx).Append(ctx, ledger.AppendInput{
			AccountID:    accountID,
			Kind:         ledger.KindRepayment,
			Amount:       amount,
			Status:       ledger.StatusCompleted,
			Counterparty: ledger.InternalCounterparty,
		})
		if err != nil {
			return err
		}
		updated, err := repoTx.ApplyPayment(ctx, loanID, amount)
		if err != nil {
			return err
		}

		if s.schedule {
			if err := s.settleInstallment(ctx, repoTx, loanID, amount, txn.ID); err != nil {
				return err
			}
		}

		result = RepayResult{Loan: updated, Transaction: txn}
		return nil
	})
	if err != nil {
		return RepayResult{}, err
	}

	if s.notifier != nil {
		s.notifier.RepaymentReceived(ctx, result.Loan, result.Transaction)
	}
	return result, nil
}

// settleInstallment marks the earliest unpaid installment Paid with the
// payment amount and ledger reference. A fully paid schedule is not an
// error: late lump-sum payments can outrun the installment count.
func (s *Service) settleInstallment(ctx context.Context, repo Repository, loanID int64, amount decimal.Decimal, transactionID int64) error {
	entry, err := repo.EarliestUnpaid(ctx, loanID)
	if errors.Is(err, ErrNoUnpaidInstallment) {
		return nil
	}
	if err != nil {
		return err
	}
	return repo.MarkInstallmentPaid(ctx, entry.ID, amount, transactionID, time.Now().UTC())
}
