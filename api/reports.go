package api

import (
	"net/http"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// REPORT HANDLERS
// =============================================================================
//
// Point-in-time reports take ?as_of= (default today). Period reports take
// ?from=&to= (default: start of to's year through today).

// TrialBalance GET /api/reports/trial-balance?as_of=
func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	asOf, ok := dateQuery(w, r, "as_of", ledger.Today())
	if !ok {
		return
	}
	rep, err := ws.Reports.TrialBalance(r.Context(), asOf)
	if err != nil {
		fail(w, r, "Failed to build trial balance", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GeneralLedger GET /api/reports/general-ledger/{id}?from=&to=
func (h *Handler) GeneralLedger(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	rep, err := ws.Reports.GeneralLedger(r.Context(), ledger.AccountID(id), from, to)
	if err != nil {
		fail(w, r, "Failed to build general ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// BalanceSheet GET /api/reports/balance-sheet?as_of=
func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	asOf, ok := dateQuery(w, r, "as_of", ledger.Today())
	if !ok {
		return
	}
	rep, err := ws.Reports.BalanceSheet(r.Context(), asOf)
	if err != nil {
		fail(w, r, "Failed to build balance sheet", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// IncomeStatement GET /api/reports/income-statement?from=&to=
func (h *Handler) IncomeStatement(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	rep, err := ws.Reports.IncomeStatement(r.Context(), from, to)
	if err != nil {
		fail(w, r, "Failed to build income statement", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// DayBook GET /api/reports/day-book?from=&to=
func (h *Handler) DayBook(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	rep, err := ws.Reports.DayBook(r.Context(), from, to)
	if err != nil {
		fail(w, r, "Failed to build day book", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// PurchaseRegister GET /api/reports/purchase-register?from=&to=
func (h *Handler) PurchaseRegister(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	rep, err := ws.Reports.PurchaseRegister(r.Context(), from, to)
	if err != nil {
		fail(w, r, "Failed to build purchase register", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// SalesRegister GET /api/reports/sales-register?from=&to=
func (h *Handler) SalesRegister(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	rep, err := ws.Reports.SalesRegister(r.Context(), from, to)
	if err != nil {
		fail(w, r, "Failed to build sales register", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Statement GET /api/reports/statement/{kind}/{id}?from=&to=
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	st, err := ws.Reports.Statement(r.Context(), kind, ledger.EntityID(id), from, to)
	if err != nil {
		fail(w, r, "Failed to build statement", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

// AgingReport GET /api/reports/aging/{kind}?as_of=
func (h *Handler) AgingReport(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	asOf, ok := dateQuery(w, r, "as_of", ledger.Today())
	if !ok {
		return
	}
	rep, err := ws.Reports.Aging(r.Context(), kind, asOf)
	if err != nil {
		fail(w, r, "Failed to build aging report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
