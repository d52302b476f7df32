/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to the tenant's wired
  ledger components.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                  List the chart (?type=&active=)
    POST   /api/accounts                  Create account
    GET    /api/accounts/{id}             Get account
    GET    /api/accounts/{id}/balance     Balance as of ?as_of=
    POST   /api/accounts/{id}/deactivate  Retire account
    POST   /api/accounts/{id}/activate    Re-enable account

  Journal:
    GET    /api/journal-entries           List (?from=&to=&type=&reference_type=&reference_id=)
    POST   /api/journal-entries           Manual entry
    GET    /api/journal-entries/{id}      Get entry with lines
    POST   /api/journal-entries/{id}/reverse  Mirror entry

  Counterparties / ledgers:
    GET    /api/counterparties/{kind}     List suppliers or customers
    POST   /api/counterparties/{kind}     Register one
    GET    /api/ledgers/{kind}/{id}       Rows (?from=&to=)
    GET    /api/ledgers/{kind}/{id}/aging Aging (?as_of=)

  Admin:
    POST   /api/admin/rebuild-caches      Recompute cached balances

ARCHITECTURE:
  Handler holds the tenant manager. Each request resolves its Workspace from
  the X-Tenant-ID header; nothing is shared between tenants.

REQUEST FLOW:
  1. Resolve tenant
  2. Decode and validate input
  3. Call the ledger / composer / report generator
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status chosen by kind:
  - 400: Validation errors, invalid input, duplicate codes
  - 404: Account, entry or counterparty not found
  - 409: Entry-number conflict that outlived its retries
  - 500: Configuration and internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - events.go: Business event handlers
  - reports.go: Report handlers
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/tenant"
)

// TenantHeader selects the tenant a request runs against.
const TenantHeader = "X-Tenant-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tenants       *tenant.Manager
	DefaultTenant string

	validate *validator.Validate
}

// NewHandler creates a new handler over the tenant manager.
func NewHandler(tenants *tenant.Manager, defaultTenant string) *Handler {
	return &Handler{
		Tenants:       tenants,
		DefaultTenant: defaultTenant,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

// workspace resolves the request's tenant. It writes the error response
// itself and returns nil on failure.
func (h *Handler) workspace(w http.ResponseWriter, r *http.Request) *tenant.Workspace {
	id := strings.TrimSpace(r.Header.Get(TenantHeader))
	if id == "" {
		id = h.DefaultTenant
	}
	ws, err := h.Tenants.Get(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to open tenant", err)
		return nil
	}
	return ws
}

// decode reads a JSON body into dst and validates its tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the chart of accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	filter := ledger.AccountFilter{
		Type:       ledger.AccountType(r.URL.Query().Get("type")),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid account type", nil)
		return
	}

	accounts, err := ws.Registry.ListAccounts(r.Context(), filter)
	if err != nil {
		fail(w, r, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount adds an account to the chart.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := ws.Registry.CreateAccount(r.Context(), ledger.NewAccount{
		Code:           req.Code,
		Name:           req.Name,
		Type:           ledger.AccountType(req.Type),
		ParentCode:     req.ParentCode,
		OpeningBalance: req.OpeningBalance,
		Description:    req.Description,
	})
	if err != nil {
		fail(w, r, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(*acct))
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	acct, err := ws.Registry.GetAccount(r.Context(), ledger.AccountID(id))
	if err != nil {
		fail(w, r, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acct))
}

// GetAccountBalance replays an account's balance as of a date.
// GET /api/accounts/{id}/balance?as_of=YYYY-MM-DD
func (h *Handler) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	asOf, ok := dateQuery(w, r, "as_of", ledger.Today())
	if !ok {
		return
	}

	ctx := r.Context()
	acct, err := ws.Registry.GetAccount(ctx, ledger.AccountID(id))
	if err != nil {
		fail(w, r, "Failed to get account", err)
		return
	}
	balances := ledger.NewBalanceCalculator(ws.Store)
	bal, err := balances.BalanceOf(ctx, acct, asOf)
	if err != nil {
		fail(w, r, "Failed to calculate balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		AccountID:     int64(acct.ID),
		Code:          acct.Code,
		Name:          acct.Name,
		AsOf:          asOf.String(),
		Balance:       bal,
		CachedBalance: acct.CurrentBalance,
	})
}

// DeactivateAccount retires an account. It stays in the statements while it
// carries a balance.
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// ActivateAccount re-enables a retired account.
func (h *Handler) ActivateAccount(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	ctx := r.Context()
	var err error
	if active {
		err = ws.Registry.Activate(ctx, ledger.AccountID(id))
	} else {
		err = ws.Registry.Deactivate(ctx, ledger.AccountID(id))
	}
	if err != nil {
		fail(w, r, "Failed to update account", err)
		return
	}

	acct, err := ws.Registry.GetAccount(ctx, ledger.AccountID(id))
	if err != nil {
		fail(w, r, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acct))
}

// =============================================================================
// JOURNAL HANDLERS
// =============================================================================

// ListEntries returns entries with lines in (date, id) order.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}

	q := r.URL.Query()
	filter := ledger.EntryFilter{
		TransactionType: ledger.TransactionType(q.Get("type")),
		ReferenceType:   ledger.ReferenceType(q.Get("reference_type")),
		PostedOnly:      q.Get("posted") == "true",
	}
	if filter.TransactionType != "" && !filter.TransactionType.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid transaction type", nil)
		return
	}
	for _, key := range []string{"from", "to"} {
		if q.Get(key) == "" {
			continue
		}
		d, err := ledger.ParseDate(q.Get(key))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+key+" date", err)
			return
		}
		if key == "from" {
			filter.From = &d
		} else {
			filter.To = &d
		}
	}
	if s := q.Get("reference_id"); s != "" {
		refID, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reference_id", err)
			return
		}
		filter.ReferenceID = &refID
	}

	entries, err := ws.Journal.ListEntries(r.Context(), filter)
	if err != nil {
		fail(w, r, "Failed to list entries", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEntry posts a manual journal entry.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	var req CreateEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	refType := ledger.ReferenceType(req.ReferenceType)
	if refType == "" {
		refType = ledger.RefManual
	}
	draft := ledger.EntryDraft{
		Date:            date,
		TransactionType: ledger.TransactionType(req.TransactionType),
		ReferenceType:   refType,
		ReferenceID:     req.ReferenceID,
		Description:     req.Description,
		Unposted:        req.Draft,
		CreatedBy:       req.CreatedBy,
	}
	for _, l := range req.Lines {
		draft.Lines = append(draft.Lines, ledger.LineDraft{
			AccountID:   ledger.AccountID(l.AccountID),
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		})
	}

	entry, err := ws.Journal.CreateEntry(r.Context(), draft)
	if err != nil {
		fail(w, r, "Failed to create entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// GetEntry returns an entry with its lines.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	entry, err := ws.Journal.GetEntry(r.Context(), ledger.EntryID(id))
	if err != nil {
		fail(w, r, "Failed to get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// ReverseEntry posts the mirror of an entry. The original is untouched.
func (h *Handler) ReverseEntry(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req ReverseEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	entry, err := ws.Journal.Reverse(r.Context(), ledger.EntryID(id), date, req.Description, req.CreatedBy)
	if err != nil {
		fail(w, r, "Failed to reverse entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// =============================================================================
// COUNTERPARTY & SUBSIDIARY LEDGER HANDLERS
// =============================================================================

// ListCounterparties returns the tenant's suppliers or customers.
func (h *Handler) ListCounterparties(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}

	cps, err := ws.Store.ListCounterparties(r.Context(), kind)
	if err != nil {
		fail(w, r, "Failed to list counterparties", err)
		return
	}
	dtos := make([]CounterpartyDTO, len(cps))
	for i, c := range cps {
		dtos[i] = toCounterpartyDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCounterparty registers a supplier or customer so rows can be
// written against it.
func (h *Handler) CreateCounterparty(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	var req CreateCounterpartyRequest
	if !h.decode(w, r, &req) {
		return
	}

	cp := &ledger.Counterparty{ID: ledger.EntityID(req.ID), Kind: kind, Name: strings.TrimSpace(req.Name)}
	if err := ws.Store.CreateCounterparty(r.Context(), cp); err != nil {
		fail(w, r, "Failed to create counterparty", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCounterpartyDTO(*cp))
}

// GetLedgerRows returns one counterparty's rows.
// GET /api/ledgers/{kind}/{id}?from=&to=
func (h *Handler) GetLedgerRows(w http.ResponseWriter, r *http.Request) {
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

	var filter ledger.RowFilter
	q := r.URL.Query()
	if q.Get("from") != "" || q.Get("to") != "" {
		from, to, ok := rangeQuery(w, r)
		if !ok {
			return
		}
		filter = ledger.RowFilter{From: &from, To: &to}
	}

	ctx := r.Context()
	if _, err := ws.Store.GetCounterparty(ctx, kind, ledger.EntityID(id)); err != nil {
		fail(w, r, "Failed to get counterparty", err)
		return
	}
	rows, err := ws.Store.Rows(ctx, kind, ledger.EntityID(id), filter)
	if err != nil {
		fail(w, r, "Failed to list ledger rows", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerRowDTOs(rows))
}

// GetEntityAging buckets one counterparty's outstanding balance.
// GET /api/ledgers/{kind}/{id}/aging?as_of=
func (h *Handler) GetEntityAging(w http.ResponseWriter, r *http.Request) {
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
	asOf, ok := dateQuery(w, r, "as_of", ledger.Today())
	if !ok {
		return
	}

	buckets, outstanding, err := ledger.NewAgingAllocator(ws.Store).AgeBalance(r.Context(), kind, ledger.EntityID(id), asOf)
	if err != nil {
		fail(w, r, "Failed to age balance", err)
		return
	}
	writeJSON(w, http.StatusOK, EntityAgingDTO{
		Kind:         string(kind),
		EntityID:     id,
		AsOf:         asOf.String(),
		Outstanding:  outstanding,
		AgingBuckets: buckets,
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RebuildCaches recomputes every cached balance of the tenant from its log.
func (h *Handler) RebuildCaches(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	drift, err := ws.RebuildCaches(r.Context())
	if err != nil {
		fail(w, r, "Failed to rebuild caches", err)
		return
	}
	if n := len(drift.Accounts) + len(drift.Entities); n > 0 {
		hlog.FromRequest(r).Warn().Int("corrected", n).Msg("cached balances drifted from the log")
	}
	writeJSON(w, http.StatusOK, RebuildResponse{
		Tenant:   ws.ID,
		Accounts: toDriftDTOs(drift.Accounts),
		Entities: toDriftDTOs(drift.Entities),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		var ve *ledger.ValidationError
		if errors.As(err, &ve) {
			resp.Code = ve.Code
		}
	}
	writeJSON(w, status, resp)
}

// fail maps an engine error to its status and logs server-side failures.
func fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tenant.ErrInvalidTenant), ledger.IsClientError(err):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsRetryable(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name), err)
		return 0, false
	}
	return id, true
}

// kindParam accepts supplier/suppliers and customer/customers.
func kindParam(w http.ResponseWriter, r *http.Request) (ledger.EntityKind, bool) {
	kind := ledger.EntityKind(strings.TrimSuffix(strings.ToLower(chi.URLParam(r, "kind")), "s"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid counterparty kind (use supplier or customer)", nil)
		return "", false
	}
	return kind, true
}

func dateQuery(w http.ResponseWriter, r *http.Request, key string, def ledger.Date) (ledger.Date, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, true
	}
	d, err := ledger.ParseDate(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+key+" date", err)
		return ledger.Date{}, false
	}
	return d, true
}

// rangeQuery reads ?from=&to=. 'to' defaults to today and 'from' to the
// first day of to's year.
func rangeQuery(w http.ResponseWriter, r *http.Request) (ledger.Date, ledger.Date, bool) {
	to, ok := dateQuery(w, r, "to", ledger.Today())
	if !ok {
		return ledger.Date{}, ledger.Date{}, false
	}
	from, ok := dateQuery(w, r, "from", ledger.NewDate(to.Year(), 1, 1))
	if !ok {
		return ledger.Date{}, ledger.Date{}, false
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "Invalid range: to is before from", nil)
		return ledger.Date{}, ledger.Date{}, false
	}
	return from, to, true
}
