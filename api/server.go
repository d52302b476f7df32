/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. hlog:       zerolog logger on the request context, request id,
                 one access line per request (method, url, status, duration)
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. CORS:       Cross-origin requests for the ERP frontend

ROUTE GROUPS:
  /api/accounts/*         Chart of accounts and balances
  /api/journal-entries/*  Entry log, manual entries, reversals
  /api/events/*           Business events (sales, purchases, ...)
  /api/counterparties/*   Supplier/customer mirror
  /api/ledgers/*          Subsidiary ledger rows and aging
  /api/reports/*          Financial reports
  /api/scenarios/*        Demo data
  /api/admin/*            Cache rebuild

TENANCY:
  Every request is served against the tenant named by the X-Tenant-ID
  header, or the configured default tenant.

SECURITY NOTE:
  No authentication middleware. The service is expected to sit behind the
  ERP backend, which authenticates users and sets X-Tenant-ID.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	Logger      zerolog.Logger
	CORSOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-ID"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Str("tenant", r.Header.Get(TenantHeader)).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", TenantHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Chart of accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/balance", h.GetAccountBalance)
			r.Post("/{id}/deactivate", h.DeactivateAccount)
			r.Post("/{id}/activate", h.ActivateAccount)
		})

		// Journal entries
		r.Route("/journal-entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/", h.CreateEntry)
			r.Get("/{id}", h.GetEntry)
			r.Post("/{id}/reverse", h.ReverseEntry)
		})

		// Business events
		r.Route("/events", func(r chi.Router) {
			r.Post("/sales", h.PostSale)
			r.Post("/purchases", h.PostPurchase)
			r.Post("/adjustments", h.PostAdjustment)
			r.Post("/cash-variance", h.PostCashVariance)
			r.Post("/payments", h.PostPaymentVoucher)
			r.Post("/receipts", h.PostReceiptVoucher)
		})

		// Counterparty mirror
		r.Route("/counterparties/{kind}", func(r chi.Router) {
			r.Get("/", h.ListCounterparties)
			r.Post("/", h.CreateCounterparty)
		})

		// Subsidiary ledgers
		r.Route("/ledgers/{kind}/{id}", func(r chi.Router) {
			r.Get("/", h.GetLedgerRows)
			r.Get("/aging", h.GetEntityAging)
		})

		// Reports
		r.Route("/reports", func(r chi.Router) {
			r.Get("/trial-balance", h.TrialBalance)
			r.Get("/general-ledger/{id}", h.GeneralLedger)
			r.Get("/balance-sheet", h.BalanceSheet)
			r.Get("/income-statement", h.IncomeStatement)
			r.Get("/day-book", h.DayBook)
			r.Get("/purchase-register", h.PurchaseRegister)
			r.Get("/sales-register", h.SalesRegister)
			r.Get("/statement/{kind}/{id}", h.Statement)
			r.Get("/aging/{kind}", h.AgingReport)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rebuild-caches", h.RebuildCaches)
		})
	})

	return r
}
