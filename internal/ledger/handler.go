package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/creditjambo/creditjambo/internal/accounts"
	"github.com/creditjambo/creditjambo/internal/platform/httpx"
)

// Handler exposes deposit, withdrawal and transaction endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accounts/{accountID}/deposits", h.deposit)
	r.Post("/accounts/{accountID}/withdrawals", h.withdraw)
	r.Get("/accounts/{accountID}/transactions", h.listTransactions)
	r.Get("/transactions/{transactionID}", h.getTransaction)
	r.Patch("/transactions/{transactionID}/status", h.updateStatus)
}

type moveMoneyRequest struct {
	Amount              string `json:"amount" validate:"required"`
	CounterpartyName    string `json:"counterparty_name" validate:"required"`
	CounterpartyAccount string `json:"counterparty_account" validate:"required"`
}

func (req moveMoneyRequest) parseAmount() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, accounts.ErrInvalidAmount
	}
	return amount, nil
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, h.service.Deposit)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, h.service.Withdraw)
}

func (h *Handler) moveMoney(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, accountID int64, amount decimal.Decimal, cp Counterparty) (Transaction, error),
) {
	accountID, err := httpx.URLParamID(r, "accountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}

	var req moveMoneyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	amount, err := req.parseAmount()
	if err != nil {
		h.respondError(w, err)
		return
	}

	txn, err := op(r.Context(), accountID, amount, Counterparty{
		Name:    req.CounterpartyName,
		Account: req.CounterpartyAccount,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := httpx.URLParamID(r, "accountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}

	txns, err := h.service.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if txns == nil {
		txns = []Transaction{}
	}
	httpx.JSON(w, http.StatusOK, txns)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "transactionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}

	txn, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

type updateStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=Pending Completed Failed Reversed"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "transactionID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transaction id")
		return
	}

	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}

	txn, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound), errors.Is(err, ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, accounts.ErrInsufficientFunds):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Funds", err.Error())
	case errors.Is(err, accounts.ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
