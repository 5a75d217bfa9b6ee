package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/creditjambo/creditjambo/internal/credit"
	"github.com/creditjambo/creditjambo/internal/ledger"
	"github.com/creditjambo/creditjambo/internal/loans"
)

func TestHandleLoanDecidedTask(t *testing.T) {
	task, err := NewLoanDecidedTask(LoanDecidedPayload{
		RequestID: 7,
		AccountID: 3,
		Decision:  "Approved",
		LoanID:    12,
		Principal: "100000",
		Total:     "109000",
		DecidedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, TaskTypeLoanDecided, task.Type())
	require.NoError(t, HandleLoanDecidedTask(context.Background(), task))
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	task := asynq.NewTask(TaskTypeLoanDecided, []byte("{not json"))
	require.ErrorIs(t, HandleLoanDecidedTask(context.Background(), task), asynq.SkipRetry)

	task = asynq.NewTask(TaskTypeRepaymentReceived, []byte("{not json"))
	require.ErrorIs(t, HandleRepaymentReceivedTask(context.Background(), task), asynq.SkipRetry)
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "109,000.00", formatAmount("109000"))
	require.Equal(t, "18,166.67", formatAmount("18166.67"))
	// Unparseable values pass through untouched.
	require.Equal(t, "n/a", formatAmount("n/a"))
}

func TestEnqueuerPushesTasks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer client.Close()

	e := NewEnqueuer(client, slog.Default())
	ctx := context.Background()

	approverID := int64(99)
	request := credit.LoanRequest{
		ID:         7,
		AccountID:  3,
		Amount:     decimal.RequireFromString("100000"),
		Status:     credit.RequestApproved,
		ApproverID: &approverID,
	}
	loan := loans.Loan{
		ID:             12,
		AccountID:      3,
		Principal:      decimal.RequireFromString("100000"),
		TotalRepayable: decimal.RequireFromString("109000"),
		PaidAmount:     decimal.RequireFromString("20000"),
		Status:         loans.StatusActive,
	}
	e.LoanDecided(ctx, request, &loan)
	e.RepaymentReceived(ctx, loan, ledger.Transaction{
		ID:        44,
		AccountID: 3,
		Kind:      ledger.KindRepayment,
		Amount:    decimal.RequireFromString("20000"),
		Reference: "REF-ABCDEF1234",
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()

	pending, err := inspector.ListPendingTasks(QueueDefault)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	types := map[string]bool{}
	for _, taskInfo := range pending {
		types[taskInfo.Type] = true
	}
	require.True(t, types[TaskTypeLoanDecided])
	require.True(t, types[TaskTypeRepaymentReceived])
}

func TestEnqueueFailureIsSwallowed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	mr.Close()
	defer client.Close()

	e := NewEnqueuer(client, slog.Default())
	// Must not panic or propagate: the commit already happened.
	e.RepaymentReceived(context.Background(), loans.Loan{ID: 1}, ledger.Transaction{ID: 2})
}
