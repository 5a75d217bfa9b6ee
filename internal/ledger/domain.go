package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindDeposit      Kind = "Deposit"
	KindWithdrawal   Kind = "Withdrawal"
	KindDisbursement Kind = "Disbursement"
	KindRepayment    Kind = "Repayment"
)

// Status is the settlement state of a ledger entry. Deposits,
// withdrawals, disbursements and repayments settle immediately, so
// entries are created Completed; Pending exists for externally sourced
// entries awaiting confirmation.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusReversed  Status = "Reversed"
)

// Transaction is an immutable ledger entry. Only the status may change
// after creation, and only along the transitions validTransition allows.
type Transaction struct {
	ID                  int64           `json:"transaction_id"`
	AccountID           int64           `json:"account_id"`
	Kind                Kind            `json:"kind"`
	Amount              decimal.Decimal `json:"amount"`
	Status              Status          `json:"status"`
	Reference           string          `json:"reference"`
	CounterpartyName    string          `json:"counterparty_name"`
	CounterpartyAccount string          `json:"counterparty_account"`
	OccurredAt          time.Time       `json:"occurred_at"`
}

// Counterparty names the other side of a money movement.
type Counterparty struct {
	Name    string
	Account string
}

// InternalCounterparty is stamped on disbursements and repayments, which
// move money between the platform and the member's own savings account.
var InternalCounterparty = Counterparty{Name: "CreditJambo", Account: "0000000000"}

// NewReference generates a unique, externally visible reference token.
// Disbursements keep the DISB prefix for compatibility with statements
// issued by the previous system.
func NewReference(kind Kind) string {
	prefix := "REF"
	if kind == KindDisbursement {
		prefix = "DISB"
	}
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return prefix + "-" + token
}

// validTransition allows Pending entries to settle or fail and Completed
// entries to be reversed. Everything else is rejected.
func validTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted:
		return to == StatusReversed
	default:
		return false
	}
}
