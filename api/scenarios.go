/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate a tenant with realistic
	pharmacy activity. Each scenario registers counterparties and posts
	business events through the same composers and Poster the event
	endpoints use, so the resulting books are exactly what live traffic
	would produce.

AVAILABLE SCENARIOS:

	pharmacy-month:  one January of trading: opening capital, credit and cash
	                 purchases, cash/credit sales, a return, vouchers, a
	                 return to supplier and a short cash session
	aged-payables:   credit purchases spread over half a year with one
	                 partial payment, for AP aging

HOW SCENARIOS WORK:
 1. Refuse if the tenant already has entries (the log is append-only)
 2. Register suppliers and customers
 3. Compose and post each event in date order

USAGE VIA API:

	POST /api/scenarios/load
	X-Tenant-ID: demo
	{"scenario_id": "pharmacy-month"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxx(ctx, ws)
 3. Add it to the loaders map

NOTE:

	Load scenarios into a fresh tenant id. Entries cannot be deleted.

SEE ALSO:
  - events.go: the live event handlers
  - cmd/server/main.go: seed --scenario
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/compose"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/tenant"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest names the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "pharmacy-month",
		Name:        "Pharmacy Month",
		Description: "January trading: purchases, sales, a return, vouchers, supplier return, cash short",
	},
	{
		ID:          "aged-payables",
		Name:        "Aged Payables",
		Description: "Credit purchases over six months with a partial payment, for AP aging",
	},
}

var loaders = map[string]func(context.Context, *tenant.Workspace) error{
	"pharmacy-month": loadPharmacyMonth,
	"aged-payables":  loadAgedPayables,
}

// ErrTenantNotEmpty is returned when a scenario targets a tenant with entries.
var ErrTenantNotEmpty = errors.New("tenant already has journal entries")

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into the request's tenant.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := RunScenario(r.Context(), ws, req.ScenarioID); err != nil {
		switch {
		case errors.Is(err, ErrTenantNotEmpty):
			writeError(w, http.StatusConflict, "Scenarios load into an empty tenant", err)
		case loaders[req.ScenarioID] == nil:
			writeError(w, http.StatusNotFound, "Unknown scenario", err)
		default:
			fail(w, r, "Failed to load scenario", err)
		}
		return
	}

	for _, s := range scenarios {
		if s.ID == req.ScenarioID {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
}

// RunScenario loads scenario id into an empty workspace.
func RunScenario(ctx context.Context, ws *tenant.Workspace, id string) error {
	load, ok := loaders[id]
	if !ok {
		return fmt.Errorf("unknown scenario: %s", id)
	}
	existing, err := ws.Journal.ListEntries(ctx, ledger.EntryFilter{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return ErrTenantNotEmpty
	}
	return load(ctx, ws)
}

// =============================================================================
// SCENARIO: PHARMACY MONTH
// =============================================================================

func loadPharmacyMonth(ctx context.Context, ws *tenant.Workspace) error {
	if err := register(ctx, ws,
		ledger.Counterparty{Kind: ledger.KindSupplier, ID: 1, Name: "MedSupply Co"},
		ledger.Counterparty{Kind: ledger.KindSupplier, ID: 2, Name: "PharmaDist"},
		ledger.Counterparty{Kind: ledger.KindCustomer, ID: 1, Name: "City Clinic"},
		ledger.Counterparty{Kind: ledger.KindCustomer, ID: 2, Name: "Dr. Rahman"},
	); err != nil {
		return err
	}

	day := func(d int) ledger.Date { return ledger.NewDate(2025, 1, d) }
	c := ws.Composer

	// Owner's capital
	if _, err := ws.Journal.CreateEntry(ctx, ledger.EntryDraft{
		Date:            day(1),
		TransactionType: ledger.TxOpening,
		ReferenceType:   ledger.RefManual,
		Description:     "Owner's capital introduced",
		Lines: []ledger.LineDraft{
			ledger.Debit(ws.Chart.ID(ledger.RoleCash), money("50000"), ""),
			ledger.Credit(ws.Chart.ID(ledger.RoleCapital), money("50000"), ""),
		},
		CreatedBy: "scenario",
	}); err != nil {
		return err
	}

	// Credit purchase with freight and advance tax
	if err := postEvent(ctx, ws, func() (compose.Posting, error) {
		return c.Purchase(compose.GRN{
			GRNID: 1, GRNNumber: "GRN-0001", Date: day(3), SupplierID: 1,
			SubTotal: money("20000"), Freight: money("500"), AdvanceTax: money("200"),
			NetTotal: money("20700"), Mode: compose.ModeCredit, CreatedBy: "scenario",
		})
	}); err != nil {
		return err
	}
	ws.Costs.Receive(101, money("1000"), money("12"))
	ws.Costs.Receive(102, money("400"), money("20.50"))

	// Cash purchase: purchase entry plus immediate payment entry
	if err := postEvent(ctx, ws, func() (compose.Posting, error) {
		return c.Purchase(compose.GRN{
			GRNID: 2, GRNNumber: "GRN-0002", Date: day(5), SupplierID: 2,
			SubTotal: money("5000"), NetTotal: money("5000"), Mode: compose.ModeCash, CreatedBy: "scenario",
		})
	}); err != nil {
		return err
	}
	ws.Costs.Receive(103, money("250"), money("20"))

	sales := []compose.Sale{
		{
			InvoiceID: 1, InvoiceNumber: "INV-0001", Date: day(6), Method: compose.MethodCash,
			NetTotal: money("1100"), TaxAmount: money("100"), Discount: decimal.Zero,
			Items: []compose.SaleItem{{ProductID: 101, Quantity: money("50")}},
		},
		{
			InvoiceID: 2, InvoiceNumber: "INV-0002", Date: day(8), CustomerID: 1, Method: compose.MethodCredit,
			NetTotal: money("2300"), TaxAmount: money("200"), Discount: money("100"),
			Items: []compose.SaleItem{{ProductID: 102, Quantity: money("60")}},
		},
		{
			InvoiceID: 3, InvoiceNumber: "INV-0003", Date: day(10), Method: compose.MethodCash,
			NetTotal: money("-220"), TaxAmount: money("-20"), Discount: decimal.Zero,
			Items: []compose.SaleItem{{ProductID: 101, Quantity: money("-10")}},
		},
		{
			InvoiceID: 4, InvoiceNumber: "INV-0004", Date: day(12), Method: compose.MethodCard,
			NetTotal: money("880"), TaxAmount: money("80"), Discount: decimal.Zero,
			Items: []compose.SaleItem{{ProductID: 103, Quantity: money("30")}},
		},
	}
	for _, s := range sales {
		s.CreatedBy = "scenario"
		if err := postEvent(ctx, ws, func() (compose.Posting, error) { return c.Sale(ctx, s) }); err != nil {
			return err
		}
		for _, it := range s.Items {
			ws.Costs.Issue(it.ProductID, it.Quantity)
		}
	}

	// Customer settles part of the credit sale
	if err := postEvent(ctx, ws, func() (compose.Posting, error) {
		return c.ReceiptVoucher(compose.Voucher{
			VoucherID: 1, Date: day(15), PartyType: compose.PartyCustomer, PartyID: 1,
			Amount: money("1500"), Description: "Part payment INV-0002", CreatedBy: "scenario",
		})
	}); err != nil {
		return err
	}

	// Supplier paid from the bank
	if err := postEvent(ctx, ws, func() (compose.Posting, error) {
		return c.PaymentVoucher(compose.Voucher{
			VoucherID: 1, Date: day(20), PartyType: compose.PartySupplier, PartyID: 1,
			Amount: money("10000"), AccountID: ws.Chart.ID(ledger.RoleBank),
			Description: "Payment against GRN-0001", CreatedBy: "scenario",
		})
	}); err != nil {
		return err
	}

	// Damaged stock returned to supplier
	if err := postEvent(ctx, ws, func() (compose.Posting, error) {
		return c.Adjustment(ctx, compose.Adjustment{
			AdjustmentID: 1, Date: day(22), Type: compose.AdjustReturnToSupplier, SupplierID: 1,
			ProductID: 102, BatchNumber: "B-102-01", Quantity: money("20"), CreatedBy: "scenario",
		})
	}); err != nil {
		return err
	}
	ws.Costs.Issue(102, money("20"))

	// Utilities paid in cash
	if err := postEvent(ctx, ws, func() (compose.Posting, error) {
		return c.PaymentVoucher(compose.Voucher{
			VoucherID: 2, Date: day(25), PartyType: compose.PartyOther, PartyName: "Electricity",
			Amount: money("800"), Description: "January electricity", CreatedBy: "scenario",
		})
	}); err != nil {
		return err
	}

	// Till counted 10 short at month end
	return postEvent(ctx, ws, func() (compose.Posting, error) {
		return c.CashVariance(compose.CashSessionClose{
			SessionID: 1, SessionNumber: "CS-0001", Date: day(31),
			Expected: money("45000"), Counted: money("44990"), CreatedBy: "scenario",
		}), nil
	})
}

// =============================================================================
// SCENARIO: AGED PAYABLES
// =============================================================================

func loadAgedPayables(ctx context.Context, ws *tenant.Workspace) error {
	if err := register(ctx, ws,
		ledger.Counterparty{Kind: ledger.KindSupplier, ID: 1, Name: "MedSupply Co"},
	); err != nil {
		return err
	}

	grns := []struct {
		date ledger.Date
		net  string
	}{
		{ledger.NewDate(2025, 1, 10), "5000"},
		{ledger.NewDate(2025, 3, 15), "3000"},
		{ledger.NewDate(2025, 5, 20), "2000"},
		{ledger.NewDate(2025, 6, 20), "1000"},
	}
	for i, g := range grns {
		g := g
		id := int64(i + 1)
		if err := postEvent(ctx, ws, func() (compose.Posting, error) {
			return ws.Composer.Purchase(compose.GRN{
				GRNID: id, GRNNumber: fmt.Sprintf("GRN-%04d", id), Date: g.date, SupplierID: 1,
				SubTotal: money(g.net), NetTotal: money(g.net), Mode: compose.ModeCredit, CreatedBy: "scenario",
			})
		}); err != nil {
			return err
		}
	}

	// A partial payment consumes the oldest balance first
	return postEvent(ctx, ws, func() (compose.Posting, error) {
		return ws.Composer.PaymentVoucher(compose.Voucher{
			VoucherID: 1, Date: ledger.NewDate(2025, 6, 25), PartyType: compose.PartySupplier, PartyID: 1,
			Amount: money("4000"), Description: "On account", CreatedBy: "scenario",
		})
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func register(ctx context.Context, ws *tenant.Workspace, cps ...ledger.Counterparty) error {
	for i := range cps {
		if err := ws.Store.CreateCounterparty(ctx, &cps[i]); err != nil {
			return fmt.Errorf("register %s %d: %w", cps[i].Kind, cps[i].ID, err)
		}
	}
	return nil
}

func postEvent(ctx context.Context, ws *tenant.Workspace, build func() (compose.Posting, error)) error {
	posting, err := build()
	if err != nil {
		return err
	}
	_, err = ws.Poster.Post(ctx, posting)
	return err
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }
