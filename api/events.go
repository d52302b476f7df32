package api

import (
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/warp/ledger-engine/compose"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/tenant"
)

// =============================================================================
// BUSINESS EVENT HANDLERS
// =============================================================================
//
// Each handler composes the event into a Posting and hands it to the
// tenant's Poster, which writes every entry and ledger row in one unit of
// work. Events with no ledger effect answer 200 with empty lists; events
// that posted answer 201.

// PostSale records a finalized invoice.
// POST /api/events/sales
func (h *Handler) PostSale(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	var req SaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := ledger.ParseDate(req.Date)
	sale := req.toSale(date)

	posting, err := ws.Composer.Sale(r.Context(), sale)
	if err != nil {
		fail(w, r, "Failed to compose sale", err)
		return
	}
	if !h.post(w, r, ws, posting) {
		return
	}
	for _, it := range sale.Items {
		ws.Costs.Issue(it.ProductID, it.Quantity)
	}
}

// PostPurchase records a finalized GRN and, for cash/bank modes, its
// immediate payment.
// POST /api/events/purchases
func (h *Handler) PostPurchase(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	var req PurchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := ledger.ParseDate(req.Date)

	posting, err := ws.Composer.Purchase(req.toGRN(date))
	if err != nil {
		fail(w, r, "Failed to compose purchase", err)
		return
	}
	if !h.post(w, r, ws, posting) {
		return
	}
	for _, it := range req.Items {
		avg := ws.Costs.Receive(it.ProductID, it.Quantity, it.UnitCost)
		hlog.FromRequest(r).Debug().Int64("product", it.ProductID).Stringer("avg_cost", avg).Msg("cost updated")
	}
}

// PostAdjustment records a stock adjustment. Only returns to supplier
// reach the books.
// POST /api/events/adjustments
func (h *Handler) PostAdjustment(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := ledger.ParseDate(req.Date)
	adj := req.toAdjustment(date)

	posting, err := ws.Composer.Adjustment(r.Context(), adj)
	if err != nil {
		fail(w, r, "Failed to compose adjustment", err)
		return
	}
	if !h.post(w, r, ws, posting) {
		return
	}
	if adj.Type == compose.AdjustCount {
		ws.Costs.Issue(adj.ProductID, adj.Quantity.Neg())
	} else {
		ws.Costs.Issue(adj.ProductID, adj.Quantity.Abs())
	}
}

// PostCashVariance records the over/short of a closed cash session.
// POST /api/events/cash-variance
func (h *Handler) PostCashVariance(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	var req CashVarianceRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := ledger.ParseDate(req.Date)

	h.post(w, r, ws, ws.Composer.CashVariance(compose.CashSessionClose{
		SessionID:     req.SessionID,
		SessionNumber: req.SessionNumber,
		Date:          date,
		Expected:      req.Expected,
		Counted:       req.Counted,
		CreatedBy:     req.CreatedBy,
	}))
}

// PostPaymentVoucher records money paid out.
// POST /api/events/payments
func (h *Handler) PostPaymentVoucher(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	var req VoucherRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := ledger.ParseDate(req.Date)

	posting, err := ws.Composer.PaymentVoucher(req.toVoucher(date))
	if err != nil {
		fail(w, r, "Failed to compose payment voucher", err)
		return
	}
	h.post(w, r, ws, posting)
}

// PostReceiptVoucher records money received.
// POST /api/events/receipts
func (h *Handler) PostReceiptVoucher(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(w, r)
	if ws == nil {
		return
	}
	var req VoucherRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := ledger.ParseDate(req.Date)

	posting, err := ws.Composer.ReceiptVoucher(req.toVoucher(date))
	if err != nil {
		fail(w, r, "Failed to compose receipt voucher", err)
		return
	}
	h.post(w, r, ws, posting)
}

// post writes the posting and the response. It returns false when the
// posting failed.
func (h *Handler) post(w http.ResponseWriter, r *http.Request, ws *tenant.Workspace, posting compose.Posting) bool {
	res, err := ws.Poster.Post(r.Context(), posting)
	if err != nil {
		fail(w, r, "Failed to post "+posting.Event, err)
		return false
	}
	status := http.StatusCreated
	if posting.Empty() {
		status = http.StatusOK
	}
	writeJSON(w, status, toPostingDTO(posting.Event, res))
	return true
}
