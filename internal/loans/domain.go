package loans

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrLoanNotFound = errors.New("loan not found")
	ErrOverPayment  = errors.New("payment exceeds outstanding balance")
)

// Status is the lifecycle state of a disbursed loan.
type Status string

const (
	StatusActive    Status = "Active"
	StatusPaid      Status = "Paid"
	StatusDefaulted Status = "Defaulted"
)

// Loan is a disbursed credit. paid_amount never exceeds total_repayable,
// and the loan is Paid exactly when the two are equal.
type Loan struct {
	ID             int64           `json:"loan_id"`
	RequestID      int64           `json:"request_id"`
	AccountID      int64           `json:"account_id"`
	Principal      decimal.Decimal `json:"principal"`
	TotalRepayable decimal.Decimal `json:"total_repayable"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	DisbursedAt    time.Time       `json:"disbursement_date"`
	DueDate        time.Time       `json:"due_date"`
	Status         Status          `json:"status"`
	ApproverID     *int64          `json:"approver_id,omitempty"`
	TransactionID  *int64          `json:"transaction_id,omitempty"`
}

// Outstanding is the amount still owed.
func (l Loan) Outstanding() decimal.Decimal {
	return l.TotalRepayable.Sub(l.PaidAmount)
}

// ScheduleStatus is the state of a single installment.
type ScheduleStatus string

const (
	ScheduleMissed ScheduleStatus = "Missed"
	SchedulePaid   ScheduleStatus = "Paid"
)

// ScheduleEntry is one installment of a loan's repayment schedule.
// Entries are created Missed at disbursement and flip to Paid as
// repayments land.
type ScheduleEntry struct {
	ID            int64           `json:"repayment_id"`
	LoanID        int64           `json:"loan_id"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	DueAmount     decimal.Decimal `json:"due_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Status        ScheduleStatus  `json:"status"`
	TransactionID *int64          `json:"transaction_id,omitempty"`
	PaidDate      *time.Time      `json:"paid_date,omitempty"`
}

// ScheduleInput describes an installment to create at disbursement.
type ScheduleInput struct {
	ScheduledDate time.Time
	DueAmount     decimal.Decimal
}

// BuildSchedule splits total into monthly installments starting one
// month after disbursement. The first n-1 installments are the rounded
// even split and the last absorbs the remainder, so the schedule always
// sums exactly to total.
func BuildSchedule(total decimal.Decimal, months int, disbursedAt time.Time) []ScheduleInput {
	installment := total.Div(decimal.NewFromInt(int64(months))).Round(2)

	entries := make([]ScheduleInput, 0, months)
	allocated := decimal.Zero
	for i := 1; i <= months; i++ {
		due := installment
		if i == months {
			due = total.Sub(allocated)
		}
		allocated = allocated.Add(due)
		entries = append(entries, ScheduleInput{
			ScheduledDate: disbursedAt.AddDate(0, i, 0),
			DueAmount:     due,
		})
	}
	return entries
}
