package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/creditjambo/creditjambo/internal/accounts"
	"github.com/creditjambo/creditjambo/internal/credit"
	"github.com/creditjambo/creditjambo/internal/ledger"
	"github.com/creditjambo/creditjambo/internal/loans"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AccountsHandler *accounts.Handler
	LedgerHandler   *ledger.Handler
	CreditHandler   *credit.Handler
	LoansHandler    *loans.Handler
}

// NewRouter constructs the chi.Router with CreditJambo defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		params.AccountsHandler.MountRoutes(r)
		params.LedgerHandler.MountRoutes(r)
		params.CreditHandler.MountRoutes(r)
		params.LoansHandler.MountRoutes(r)
	})

	return r
}
