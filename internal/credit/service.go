package credit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/creditjambo/creditjambo/internal/accounts"
	"github.com/creditjambo/creditjambo/internal/ledger"
	"github.com/creditjambo/creditjambo/internal/loans"
	"github.com/creditjambo/creditjambo/internal/platform/db"
)

// Notifier delivers post-commit decision notifications. Implementations
// must never fail the calling operation.
type Notifier interface {
	LoanDecided(ctx context.Context, request LoanRequest, loan *loans.Loan)
}

// DecisionResult carries the decided request and, for approvals, the
// loan funded in the same transaction.
type DecisionResult struct {
	Request LoanRequest `json:"request"`
	Loan    *loans.Loan `json:"loan,omitempty"`
}

// Service owns the credit application workflow. Approval disburses in
// the same transaction as the status flip: if any step of the
// disbursement fails, the request stays Pending and no transaction,
// balance change or loan is observable.
type Service struct {
	tx       db.TxRunner
	repo     Repository
	accounts accounts.Repository
	ledger   ledger.Repository
	loans    loans.Repository
	schedule bool
	notifier Notifier
}

func NewService(tx db.TxRunner, repo Repository, accountsRepo accounts.Repository, ledgerRepo ledger.Repository, loansRepo loans.Repository, schedule bool) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		accounts: accountsRepo,
		ledger:   ledgerRepo,
		loans:    loansRepo,
		schedule: schedule,
	}
}

// SetNotifier injects the post-commit notification hook.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Submit files a new application. It is always created Pending; the
// active-loan gate is re-checked at disbursement, where it also holds
// the account lock.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (LoanRequest, error) {
	if !ValidTerms(input.Amount, input.DurationMonths) {
		return LoanRequest{}, ErrInvalidLoanTerms
	}
	if _, err := s.accounts.Get(ctx, input.AccountID); err != nil {
		return LoanRequest{}, err
	}
	if _, err := s.loans.ActiveByAccount(ctx, input.AccountID); err == nil {
		return LoanRequest{}, ErrActiveLoanExists
	} else if !errors.Is(err, loans.ErrLoanNotFound) {
		return LoanRequest{}, err
	}
	return s.repo.Create(ctx, input)
}

func (s *Service) Get(ctx context.Context, id int64) (LoanRequest, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, status RequestStatus) ([]LoanRequest, error) {
	return s.repo.ListByStatus(ctx, status)
}

func (s *Service) ListByAccount(ctx context.Context, accountID int64) ([]LoanRequest, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// Decide records the verdict on a Pending request. Rejection only flips
// the status. Approval additionally appends the Disbursement ledger
// entry, credits the account, creates the loan and, when schedule
// tracking is on, the installment rows, all inside one transaction.
func (s *Service) Decide(ctx context.Context, requestID int64, decision Decision, approverID int64) (DecisionResult, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return DecisionResult{}, ErrInvalidState
	}

	var result DecisionResult
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		repoTx := s.repo.WithTx(tx)
		request, err := repoTx.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != RequestPending {
			return ErrInvalidState
		}

		status := RequestRejected
		if decision == DecisionApprove {
			status = RequestApproved
		}
		if err := repoTx.SetDecision(ctx, requestID, status, approverID); err != nil {
			return err
		}
		request.Status = status
		request.ApproverID = &approverID
		result = DecisionResult{Request: request}

		if decision == DecisionReject {
			return nil
		}

		loan, err := s.disburse(ctx, tx, request, approverID)
		if err != nil {
			return err
		}
		result.Loan = &loan
		return nil
	})
	if err != nil {
		return DecisionResult{}, err
	}

	if s.notifier != nil {
		s.notifier.LoanDecided(ctx, result.Request, result.Loan)
	}
	return result, nil
}

// Disburse funds an already-approved request. This is the explicit
// admin-side variant; Decide funds in the same call when approving.
func (s *Service) Disburse(ctx context.Context, requestID, approverID int64) (loans.Loan, error) {
	var (
		loan    loans.Loan
		request LoanRequest
	)
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		request, err = s.repo.WithTx(tx).GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != RequestApproved {
			return ErrRequestNotApproved
		}

		loan, err = s.disburse(ctx, tx, request, approverID)
		return err
	})
	if err != nil {
		return loans.Loan{}, err
	}

	if s.notifier != nil {
		s.notifier.LoanDecided(ctx, request, &loan)
	}
	return loan, nil
}

// disburse runs inside the caller's transaction with the request row
// already locked. It locks the account row before the active-loan and
// duplicate-disbursement checks so concurrent disbursements against the
// same account serialize.
func (s *Service) disburse(ctx context.Context, tx pgx.Tx, request LoanRequest, approverID int64) (loans.Loan, error) {
	if !ValidTerms(request.Amount, request.DurationMonths) {
		return loans.Loan{}, ErrInvalidLoanTerms
	}

	accountsTx := s.accounts.WithTx(tx)
	loansTx := s.loans.WithTx(tx)

	account, err := accountsTx.GetForUpdate(ctx, request.AccountID)
	if err != nil {
		return loans.Loan{}, err
	}

	if _, err := loansTx.GetByRequest(ctx, request.ID); err == nil {
		return loans.Loan{}, ErrAlreadyDisbursed
	} else if !errors.Is(err, loans.ErrLoanNotFound) {
		return loans.Loan{}, err
	}
	if _, err := loansTx.ActiveByAccount(ctx, account.ID); err == nil {
		return loans.Loan{}, ErrActiveLoanExists
	} else if !errors.Is(err, loans.ErrLoanNotFound) {
		return loans.Loan{}, err
	}

	total := TotalRepayable(request.Amount, request.DurationMonths)

	txn, err := s.ledger.WithTx(tx).Append(ctx, ledger.AppendInput{
		AccountID:    account.ID,
		Kind:         ledger.KindDisbursement,
		Amount:       request.Amount,
		Status:       ledger.StatusCompleted,
		Counterparty: ledger.InternalCounterparty,
	})
	if err != nil {
		return loans.Loan{}, err
	}
	if err := accountsTx.Credit(ctx, account.ID, request.Amount); err != nil {
		return loans.Loan{}, err
	}

	loan, err := loansTx.Create(ctx, loans.CreateInput{
		RequestID:      request.ID,
		AccountID:      account.ID,
		Principal:      request.Amount,
		TotalRepayable: total,
		DueDate:        txn.OccurredAt.AddDate(0, request.DurationMonths, 0),
		ApproverID:     &approverID,
		TransactionID:  &txn.ID,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return loans.Loan{}, ErrAlreadyDisbursed
		}
		return loans.Loan{}, err
	}

	if s.schedule {
		entries := loans.BuildSchedule(total, request.DurationMonths, loan.DisbursedAt)
		if err := loansTx.CreateSchedule(ctx, loan.ID, entries); err != nil {
			return loans.Loan{}, err
		}
	}

	return loan, nil
}
