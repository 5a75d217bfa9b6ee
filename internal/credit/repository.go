package credit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/creditjambo/creditjambo/internal/platform/db"
)

// SubmitInput describes a new credit application.
type SubmitInput struct {
	AccountID      int64
	Amount         decimal.Decimal
	DurationMonths int
	Purpose        string
	DeclaredIncome decimal.Decimal
}

// Repository defines loan request data access.
type Repository interface {
	WithTx(tx pgx.Tx) Repository

	Create(ctx context.Context, input SubmitInput) (LoanRequest, error)
	Get(ctx context.Context, id int64) (LoanRequest, error)
	GetForUpdate(ctx context.Context, id int64) (LoanRequest, error)
	ListByStatus(ctx context.Context, status RequestStatus) ([]LoanRequest, error)
	ListByAccount(ctx context.Context, accountID int64) ([]LoanRequest, error)
	SetDecision(ctx context.Context, id int64, status RequestStatus, approverID int64) error
}

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

const requestColumns = `request_id, account_id, requested_amount, duration, purpose,
	income, request_status, requested_at, approver_id`

func scanRequest(row pgx.Row) (LoanRequest, error) {
	var lr LoanRequest
	err := row.Scan(&lr.ID, &lr.AccountID, &lr.Amount, &lr.DurationMonths, &lr.Purpose,
		&lr.DeclaredIncome, &lr.Status, &lr.RequestedAt, &lr.ApproverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return LoanRequest{}, ErrRequestNotFound
	}
	if err != nil {
		return LoanRequest{}, err
	}
	return lr, nil
}

func (r *pgRepository) Create(ctx context.Context, input SubmitInput) (LoanRequest, error) {
	return scanRequest(r.db.QueryRow(ctx, `
		INSERT INTO loan_requests (account_id, requested_amount, duration, purpose, income)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+requestColumns,
		input.AccountID, input.Amount, input.DurationMonths, input.Purpose, input.DeclaredIncome,
	))
}

func (r *pgRepository) Get(ctx context.Context, id int64) (LoanRequest, error) {
	return scanRequest(r.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM loan_requests WHERE request_id = $1`, id))
}

// GetForUpdate locks the request row so only one decision can be in
// flight per request.
func (r *pgRepository) GetForUpdate(ctx context.Context, id int64) (LoanRequest, error) {
	return scanRequest(r.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM loan_requests WHERE request_id = $1 FOR UPDATE`, id))
}

func (r *pgRepository) ListByStatus(ctx context.Context, status RequestStatus) ([]LoanRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+requestColumns+` FROM loan_requests WHERE request_status = $1 ORDER BY requested_at DESC`,
		status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (r *pgRepository) ListByAccount(ctx context.Context, accountID int64) ([]LoanRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+requestColumns+` FROM loan_requests WHERE account_id = $1 ORDER BY requested_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func collectRequests(rows pgx.Rows) ([]LoanRequest, error) {
	var out []LoanRequest
	for rows.Next() {
		lr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}

// SetDecision records the verdict; the Pending guard makes decided
// requests immutable even if two admins race.
func (r *pgRepository) SetDecision(ctx context.Context, id int64, status RequestStatus, approverID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE loan_requests
		SET request_status = $1, approver_id = $2
		WHERE request_id = $3 AND request_status = 'Pending'`,
		status, approverID, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}
