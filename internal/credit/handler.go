package credit

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

// Handler exposes credit application endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers credit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/credit/requests", h.submit)
	r.Get("/credit/requests", h.list)
	r.Get("/credit/requests/{requestID}", h.get)
	r.Post("/credit/requests/{requestID}/decision", h.decide)
	r.Post("/credit/requests/{requestID}/disburse", h.disburse)
}

type submitRequest struct {
	AccountID      int64  `json:"account_id" validate:"required,gt=0"`
	Amount         string `json:"requested_amount" validate:"required"`
	DurationMonths int    `json:"duration_months" validate:"required,gt=0"`
	Purpose        string `json:"purpose" validate:"required"`
	DeclaredIncome string `json:"declared_income"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.respondError(w, ErrInvalidLoanTerms)
		return
	}
	income := decimal.Zero
	if req.DeclaredIncome != "" {
		if income, err = decimal.NewFromString(req.DeclaredIncome); err != nil {
			h.respondError(w, ErrInvalidLoanTerms)
			return
		}
	}

	request, err := h.service.Submit(r.Context(), SubmitInput{
		AccountID:      req.AccountID,
		Amount:         amount,
		DurationMonths: req.DurationMonths,
		Purpose:        req.Purpose,
		DeclaredIncome: income,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, request)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := RequestStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = RequestPending
	}
	switch status {
	case RequestPending, RequestApproved, RequestRejected:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown status filter")
		return
	}

	requests, err := h.service.ListByStatus(r.Context(), status)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if requests == nil {
		requests = []LoanRequest{}
	}
	httpx.JSON(w, http.StatusOK, requests)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "requestID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request id")
		return
	}

	request, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, request)
}

type decideRequest struct {
	Decision   Decision `json:"decision" validate:"required,oneof=Approved Rejected"`
	ApproverID int64    `json:"approver_id" validate:"required,gt=0"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "requestID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request id")
		return
	}

	var req decideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}

	result, err := h.service.Decide(r.Context(), id, req.Decision, req.ApproverID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type disburseRequest struct {
	ApproverID int64 `json:"approver_id" validate:"required,gt=0"`
}

func (h *Handler) disburse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "requestID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request id")
		return
	}

	var req disburseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}

	loan, err := h.service.Disburse(r.Context(), id, req.ApproverID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loan)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, accounts.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrRequestNotApproved):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrAlreadyDisbursed), errors.Is(err, ErrActiveLoanExists):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidLoanTerms):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Loan Terms", err.Error())
	default:
		h.logger.Error("credit request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
