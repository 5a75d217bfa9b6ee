package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/creditjambo/creditjambo/internal/platform/db"
)

// AppendInput describes a new ledger entry.
type AppendInput struct {
	AccountID    int64
	Kind         Kind
	Amount       decimal.Decimal
	Status       Status
	Counterparty Counterparty
}

// Repository defines ledger data access. The ledger is append-only:
// rows are inserted and their status updated, never deleted.
type Repository interface {
	WithTx(tx pgx.Tx) Repository

	Append(ctx context.Context, input AppendInput) (Transaction, error)
	Get(ctx context.Context, id int64) (Transaction, error)
	GetForUpdate(ctx context.Context, id int64) (Transaction, error)
	ListByAccount(ctx context.Context, accountID int64) ([]Transaction, error)
	SetStatus(ctx context.Context, id int64, from, to Status) error
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

const transactionColumns = `transaction_id, account_id, type, amount, status,
	reference_number, source_destination_name, source_destination_account, transaction_date`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.AccountID, &t.Kind, &t.Amount, &t.Status,
		&t.Reference, &t.CounterpartyName, &t.CounterpartyAccount, &t.OccurredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (r *pgRepository) Append(ctx context.Context, input AppendInput) (Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `
		INSERT INTO transactions
			(account_id, type, amount, status, reference_number,
			 source_destination_name, source_destination_account)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+transactionColumns,
		input.AccountID, input.Kind, input.Amount, input.Status,
		NewReference(input.Kind), input.Counterparty.Name, input.Counterparty.Account,
	))
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`, id))
}

func (r *pgRepository) GetForUpdate(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1 FOR UPDATE`, id))
}

func (r *pgRepository) ListByAccount(ctx context.Context, accountID int64) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = $1
		ORDER BY transaction_date DESC, transaction_id DESC`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetStatus updates the status only when the row still holds the
// expected prior status, so a concurrent update surfaces as a failed
// transition instead of silently winning.
func (r *pgRepository) SetStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transactions SET status = $1 WHERE transaction_id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}
