package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/creditjambo/creditjambo/internal/platform/db"
)

// Repository defines savings account data access. Credit and Debit are
// balance primitives; they assume the caller already locked the account
// row (GetForUpdate) inside the surrounding transaction.
type Repository interface {
	WithTx(tx pgx.Tx) Repository

	Create(ctx context.Context, ownerID int64) (Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	GetByOwner(ctx context.Context, ownerID int64) (Account, error)
	GetForUpdate(ctx context.Context, id int64) (Account, error)
	Credit(ctx context.Context, id int64, amount decimal.Decimal) error
	Debit(ctx context.Context, id int64, amount decimal.Decimal) error
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

const accountColumns = `account_id, owner_id, account_number, current_balance, is_active, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.Number, &a.Balance, &a.Active, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

func (r *pgRepository) Create(ctx context.Context, ownerID int64) (Account, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO savings_accounts (owner_id, account_number)
		VALUES ($1, lpad(nextval('account_number_seq')::text, 10, '0'))
		RETURNING `+accountColumns,
		ownerID,
	)
	a, err := scanAccount(row)
	if db.IsUniqueViolation(err, "savings_accounts_owner_id_key") {
		return Account{}, ErrOwnerHasAccount
	}
	return a, err
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM savings_accounts WHERE account_id = $1`, id))
}

func (r *pgRepository) GetByOwner(ctx context.Context, ownerID int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM savings_accounts WHERE owner_id = $1`, ownerID))
}

// GetForUpdate locks the account row until the surrounding transaction
// commits, serializing concurrent balance checks on the same account.
func (r *pgRepository) GetForUpdate(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM savings_accounts WHERE account_id = $1 FOR UPDATE`, id))
}

func (r *pgRepository) Credit(ctx context.Context, id int64, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE savings_accounts
		SET current_balance = current_balance + $1
		WHERE account_id = $2`,
		amount, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *pgRepository) Debit(ctx context.Context, id int64, amount decimal.Decimal) error {
	// The balance guard repeats the service-level check; with the row
	// locked it can only fail if the caller skipped the lock.
	tag, err := r.db.Exec(ctx, `
		UPDATE savings_accounts
		SET current_balance = current_balance - $1
		WHERE account_id = $2 AND current_balance >= $1`,
		amount, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}
