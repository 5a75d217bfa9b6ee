package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeLoanDecided is emitted after a credit decision commits.
	TaskTypeLoanDecided = "loan:decided"
	// TaskTypeRepaymentReceived is emitted after a repayment commits.
	TaskTypeRepaymentReceived = "loan:repayment"
)

// LoanDecidedPayload describes a committed credit decision.
type LoanDecidedPayload struct {
	RequestID int64     `json:"request_id"`
	AccountID int64     `json:"account_id"`
	Decision  string    `json:"decision"`
	LoanID    int64     `json:"loan_id,omitempty"`
	Principal string    `json:"principal,omitempty"`
	Total     string    `json:"total_repayable,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// RepaymentReceivedPayload describes a committed repayment.
type RepaymentReceivedPayload struct {
	LoanID      int64     `json:"loan_id"`
	AccountID   int64     `json:"account_id"`
	Amount      string    `json:"amount"`
	Outstanding string    `json:"outstanding"`
	Reference   string    `json:"reference"`
	ReceivedAt  time.Time `json:"received_at"`
}

// NewLoanDecidedTask constructs an Asynq task.
func NewLoanDecidedTask(payload LoanDecidedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeLoanDecided, data), nil
}

// NewRepaymentReceivedTask constructs an Asynq task.
func NewRepaymentReceivedTask(payload RepaymentReceivedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRepaymentReceived, data), nil
}

// amountPrinter formats money with thousands separators for member
// facing notification text.
var amountPrinter = message.NewPrinter(language.English)

func formatAmount(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return amountPrinter.Sprintf("%.2f", f)
}

// HandleLoanDecidedTask processes TaskTypeLoanDecided tasks.
func HandleLoanDecidedTask(ctx context.Context, t *asynq.Task) error {
	var payload LoanDecidedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder delivery: log until the SMS/email gateway lands.
	slog.Default().Info("notify loan decision",
		slog.Int64("request_id", payload.RequestID),
		slog.Int64("account_id", payload.AccountID),
		slog.String("decision", payload.Decision),
		slog.String("principal", formatAmount(payload.Principal)),
	)
	return nil
}

// HandleRepaymentReceivedTask processes TaskTypeRepaymentReceived tasks.
func HandleRepaymentReceivedTask(ctx context.Context, t *asynq.Task) error {
	var payload RepaymentReceivedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().Info("notify repayment received",
		slog.Int64("loan_id", payload.LoanID),
		slog.Int64("account_id", payload.AccountID),
		slog.String("amount", formatAmount(payload.Amount)),
		slog.String("outstanding", payload.Outstanding),
		slog.String("reference", payload.Reference),
	)
	return nil
}
