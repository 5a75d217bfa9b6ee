package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/creditjambo/creditjambo/internal/credit"
	"github.com/creditjambo/creditjambo/internal/ledger"
	"github.com/creditjambo/creditjambo/internal/loans"
)

// Enqueuer implements the credit and loans notifier hooks by pushing
// tasks onto the queue. Enqueue failures are logged and swallowed: the
// money movement already committed and must not be rolled back for a
// notification.
type Enqueuer struct {
	client *asynq.Client
	logger *slog.Logger
}

var (
	_ credit.Notifier = (*Enqueuer)(nil)
	_ loans.Notifier  = (*Enqueuer)(nil)
)

func NewEnqueuer(client *asynq.Client, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger}
}

// LoanDecided queues a decision notification.
func (e *Enqueuer) LoanDecided(ctx context.Context, request credit.LoanRequest, loan *loans.Loan) {
	payload := LoanDecidedPayload{
		RequestID: request.ID,
		AccountID: request.AccountID,
		Decision:  string(request.Status),
		DecidedAt: time.Now().UTC(),
	}
	if loan != nil {
		payload.LoanID = loan.ID
		payload.Principal = loan.Principal.String()
		payload.Total = loan.TotalRepayable.String()
	}

	task, err := NewLoanDecidedTask(payload)
	if err != nil {
		e.logger.Warn("build loan decided task", slog.Any("error", err))
		return
	}
	e.enqueue(ctx, task)
}

// RepaymentReceived queues a repayment notification.
func (e *Enqueuer) RepaymentReceived(ctx context.Context, loan loans.Loan, txn ledger.Transaction) {
	task, err := NewRepaymentReceivedTask(RepaymentReceivedPayload{
		LoanID:      loan.ID,
		AccountID:   loan.AccountID,
		Amount:      txn.Amount.String(),
		Outstanding: loan.Outstanding().String(),
		Reference:   txn.Reference,
		ReceivedAt:  time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn("build repayment task", slog.Any("error", err))
		return
	}
	e.enqueue(ctx, task)
}

func (e *Enqueuer) enqueue(ctx context.Context, task *asynq.Task) {
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		e.logger.Warn("enqueue notification", slog.String("type", task.Type()), slog.Any("error", err))
	}
}
