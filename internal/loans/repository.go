package loans

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/creditjambo/creditjambo/internal/platform/db"
)

// CreateInput describes a loan created at disbursement time.
type CreateInput struct {
	RequestID      int64
	AccountID      int64
	Principal      decimal.Decimal
	TotalRepayable decimal.Decimal
	DueDate        time.Time
	ApproverID     *int64
	TransactionID  *int64
}

// Repository defines loan and repayment schedule data access.
type Repository interface {
	WithTx(tx pgx.Tx) Repository

	Create(ctx context.Context, input CreateInput) (Loan, error)
	Get(ctx context.Context, id int64) (Loan, error)
	GetForUpdate(ctx context.Context, id int64) (Loan, error)
	GetByRequest(ctx context.Context, requestID int64) (Loan, error)
	ActiveByAccount(ctx context.Context, accountID int64) (Loan, error)
	ApplyPayment(ctx context.Context, id int64, amount decimal.Decimal) (Loan, error)
	SetStatus(ctx context.Context, id int64, status Status) error

	CreateSchedule(ctx context.Context, loanID int64, entries []ScheduleInput) error
	ListSchedule(ctx context.Context, loanID int64) ([]ScheduleEntry, error)
	EarliestUnpaid(ctx context.Context, loanID int64) (ScheduleEntry, error)
	MarkInstallmentPaid(ctx context.Context, id int64, amount decimal.Decimal, transactionID int64, paidAt time.Time) error
}

// ErrNoUnpaidInstallment is internal to the repay path: every
// installment of the loan is already marked Paid.
var ErrNoUnpaidInstallment = errors.New("no unpaid installment")

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	db db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &pgRepository{db: q}
}

func (r *pgRepository) WithTx(tx pgx.Tx) Repository {
	return &pgRepository{db: tx}
}

const loanColumns = `loan_id, request_id, account_id, disbursed_amount, total_repayable,
	paid_amount, disbursement_date, due_date, status, approver_id, transaction_id`

func scanLoan(row pgx.Row) (Loan, error) {
	var l Loan
	err := row.Scan(&l.ID, &l.RequestID, &l.AccountID, &l.Principal, &l.TotalRepayable,
		&l.PaidAmount, &l.DisbursedAt, &l.DueDate, &l.Status, &l.ApproverID, &l.TransactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Loan{}, ErrLoanNotFound
	}
	if err != nil {
		return Loan{}, err
	}
	return l, nil
}

func (r *pgRepository) Create(ctx context.Context, input CreateInput) (Loan, error) {
	return scanLoan(r.db.QueryRow(ctx, `
		INSERT INTO loans
			(request_id, account_id, disbursed_amount, total_repayable, paid_amount,
			 disbursement_date, due_date, status, approver_id, transaction_id)
		VALUES ($1, $2, $3, $4, 0, now(), $5, 'Active', $6, $7)
		RETURNING `+loanColumns,
		input.RequestID, input.AccountID, input.Principal, input.TotalRepayable,
		input.DueDate, input.ApproverID, input.TransactionID,
	))
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Loan, error) {
	return scanLoan(r.db.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE loan_id = $1`, id))
}

func (r *pgRepository) GetForUpdate(ctx context.Context, id int64) (Loan, error) {
	return scanLoan(r.db.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE loan_id = $1 FOR UPDATE`, id))
}

func (r *pgRepository) GetByRequest(ctx context.Context, requestID int64) (Loan, error) {
	return scanLoan(r.db.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE request_id = $1`, requestID))
}

func (r *pgRepository) ActiveByAccount(ctx context.Context, accountID int64) (Loan, error) {
	return scanLoan(r.db.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE account_id = $1 AND status = 'Active'`, accountID))
}

// ApplyPayment adds to paid_amount and closes the loan when it reaches
// total_repayable. Callers hold the loan row lock and have already
// rejected overpayments; the CHECK constraint backs both up.
func (r *pgRepository) ApplyPayment(ctx context.Context, id int64, amount decimal.Decimal) (Loan, error) {
	return scanLoan(r.db.QueryRow(ctx, `
		UPDATE loans
		SET paid_amount = paid_amount + $1,
		    status = CASE WHEN paid_amount + $1 >= total_repayable THEN 'Paid' ELSE status END
		WHERE loan_id = $2
		RETURNING `+loanColumns,
		amount, id,
	))
}

func (r *pgRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE loans SET status = $1 WHERE loan_id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}

func (r *pgRepository) CreateSchedule(ctx context.Context, loanID int64, entries []ScheduleInput) error {
	for _, e := range entries {
		_, err := r.db.Exec(ctx, `
			INSERT INTO repayments (loan_id, scheduled_date, due_amount, paid_amount, status)
			VALUES ($1, $2, $3, 0, 'Missed')`,
			loanID, e.ScheduledDate, e.DueAmount,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

const scheduleColumns = `repayment_id, loan_id, scheduled_date, due_amount, paid_amount,
	status, transaction_id, paid_date`

func scanScheduleEntry(row pgx.Row) (ScheduleEntry, error) {
	var e ScheduleEntry
	err := row.Scan(&e.ID, &e.LoanID, &e.ScheduledDate, &e.DueAmount, &e.PaidAmount,
		&e.Status, &e.TransactionID, &e.PaidDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScheduleEntry{}, ErrNoUnpaidInstallment
	}
	if err != nil {
		return ScheduleEntry{}, err
	}
	return e, nil
}

func (r *pgRepository) ListSchedule(ctx context.Context, loanID int64) ([]ScheduleEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+scheduleColumns+` FROM repayments WHERE loan_id = $1 ORDER BY scheduled_date ASC`,
		loanID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleEntry
	for rows.Next() {
		e, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *pgRepository) EarliestUnpaid(ctx context.Context, loanID int64) (ScheduleEntry, error) {
	return scanScheduleEntry(r.db.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM repayments
		WHERE loan_id = $1 AND status = 'Missed'
		ORDER BY scheduled_date ASC
		LIMIT 1
		FOR UPDATE`,
		loanID,
	))
}

func (r *pgRepository) MarkInstallmentPaid(ctx context.Context, id int64, amount decimal.Decimal, transactionID int64, paidAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE repayments
		SET paid_amount = $1, status = 'Paid', transaction_id = $2, paid_date = $3
		WHERE repayment_id = $4 AND status = 'Missed'`,
		amount, transactionID, paidAt, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoUnpaidInstallment
	}
	return nil
}
