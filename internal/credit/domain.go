package credit

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrRequestNotFound     = errors.New("loan request not found")
	ErrInvalidState        = errors.New("loan request already decided")
	ErrInvalidLoanTerms    = errors.New("invalid loan terms")
	ErrRequestNotApproved  = errors.New("loan request is not approved")
	ErrAlreadyDisbursed    = errors.New("loan already disbursed for this request")
	ErrActiveLoanExists    = errors.New("account already has an active loan")
)

// RequestStatus is the lifecycle state of a credit application.
// Pending transitions once, to Approved or Rejected; both are terminal.
type RequestStatus string

const (
	RequestPending  RequestStatus = "Pending"
	RequestApproved RequestStatus = "Approved"
	RequestRejected RequestStatus = "Rejected"
)

// Decision is the admin verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "Approved"
	DecisionReject  Decision = "Rejected"
)

// LoanRequest is a credit application against a savings account.
type LoanRequest struct {
	ID             int64           `json:"request_id"`
	AccountID      int64           `json:"account_id"`
	Amount         decimal.Decimal `json:"requested_amount"`
	DurationMonths int             `json:"duration_months"`
	Purpose        string          `json:"purpose"`
	DeclaredIncome decimal.Decimal `json:"declared_income"`
	Status         RequestStatus   `json:"status"`
	RequestedAt    time.Time       `json:"requested_at"`
	ApproverID     *int64          `json:"approver_id,omitempty"`
}

// annualRate is the flat simple-interest rate applied to every loan.
var annualRate = decimal.RequireFromString("0.18")

// TotalRepayable computes principal plus flat 18% annual simple
// interest, prorated by duration: amount * (1 + 0.18 * months/12).
func TotalRepayable(amount decimal.Decimal, months int) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(
		annualRate.Mul(decimal.NewFromInt(int64(months))).Div(decimal.NewFromInt(12)),
	)
	return amount.Mul(factor).Round(2)
}

// ValidTerms rejects non-positive amounts and durations before any money
// moves.
func ValidTerms(amount decimal.Decimal, months int) bool {
	return amount.IsPositive() && months > 0
}
