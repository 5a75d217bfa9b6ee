package loans

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/creditjambo/creditjambo/internal/accounts"
	"github.com/creditjambo/creditjambo/internal/platform/httpx"
)

// Handler exposes loan and repayment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers loan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{accountID}/active-loan", h.activeLoan)
	r.Get("/loans/{loanID}", h.getLoan)
	r.Get("/loans/{loanID}/schedule", h.getSchedule)
	r.Post("/loans/{loanID}/repayments", h.repay)
	r.Patch("/loans/{loanID}/status", h.setStatus)
}

type activeLoanResponse struct {
	HasActiveLoan bool  `json:"hasActiveLoan"`
	Loan          *Loan `json:"loan"`
}

func (h *Handler) activeLoan(w http.ResponseWriter, r *http.Request) {
	accountID, err := httpx.URLParamID(r, "accountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}

	loan, ok, err := h.service.ActiveLoan(r.Context(), accountID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := activeLoanResponse{HasActiveLoan: ok}
	if ok {
		resp.Loan = &loan
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) getLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := httpx.URLParamID(r, "loanID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid loan id")
		return
	}

	loan, err := h.service.Get(r.Context(), loanID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, err := httpx.URLParamID(r, "loanID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid loan id")
		return
	}

	entries, err := h.service.Schedule(r.Context(), loanID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if entries == nil {
		entries = []ScheduleEntry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

type repayRequest struct {
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
	Amount    string `json:"amount" validate:"required"`
}

func (h *Handler) repay(w http.ResponseWriter, r *http.Request) {
	loanID, err := httpx.URLParamID(r, "loanID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid loan id")
		return
	}

	var req repayRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		h.respondError(w, accounts.ErrInvalidAmount)
		return
	}

	result, err := h.service.Repay(r.Context(), req.AccountID, loanID, amount)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type setStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=Active Paid Defaulted"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	loanID, err := httpx.URLParamID(r, "loanID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid loan id")
		return
	}

	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}

	loan, err := h.service.SetStatus(r.Context(), loanID, req.Status)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLoanNotFound), errors.Is(err, accounts.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, accounts.ErrInsufficientFunds):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Funds", err.Error())
	case errors.Is(err, ErrOverPayment):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Over Payment", err.Error())
	case errors.Is(err, accounts.ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.Error("loans request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
