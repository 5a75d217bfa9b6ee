package accounts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOwnerHasAccount   = errors.New("owner already has an account")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Account is a savings account. The balance is mutated only through
// Credit/Debit inside a transaction owned by the calling service and
// never goes negative.
type Account struct {
	ID        int64           `json:"account_id"`
	OwnerID   int64           `json:"owner_id"`
	Number    string          `json:"account_number"`
	Balance   decimal.Decimal `json:"balance"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}
