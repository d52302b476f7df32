package compose

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// SALE / RETURN / EXCHANGE
// =============================================================================
//
// One invoice produces exactly one entry. Returned units are lines with a
// negative quantity, so an exchange is just an invoice whose signed totals
// net out; every component below is posted on whichever side its sign
// dictates:
//
//   payment account   net                      (Dr when net > 0)
//   revenue           gross = net + disc - tax (Cr when gross > 0)
//   tax payable       tax                      (Cr when tax > 0)
//   discount allowed  disc                     (Dr when disc > 0)
//   COGS / inventory  Σ(unitCost × qty)        (Dr COGS / Cr Inventory when > 0)
//
// gross is solved for rather than summed, so the entry balances no matter
// how the invoice rounded its own totals.

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "Cash"
	MethodCard   PaymentMethod = "Card"
	MethodBank   PaymentMethod = "Bank"
	MethodCredit PaymentMethod = "Credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodBank, MethodCredit:
		return true
	}
	return false
}

// SaleItem is one invoice line as the costing side sees it. Quantity is
// negative for returned units. UnitCost overrides the CostLookup.
type SaleItem struct {
	ProductID int64
	BatchID   int64
	Quantity  decimal.Decimal
	UnitCost  *decimal.Decimal
}

type Sale struct {
	InvoiceID     int64
	InvoiceNumber string
	Date          ledger.Date
	CustomerID    ledger.EntityID // required for credit sales
	Method        PaymentMethod
	NetTotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	Discount      decimal.Decimal
	Items         []SaleItem
	CreatedBy     string
}

// Sale composes the single entry for an invoice.
func (c *Composer) Sale(ctx context.Context, s Sale) (Posting, error) {
	if !s.Method.Valid() {
		return Posting{}, ledger.Invalid(ledger.CodeBadType, "unknown payment method %q", s.Method)
	}
	if s.Method == MethodCredit && s.CustomerID == 0 {
		return Posting{}, ledger.Invalid(ledger.CodeNoCounterparty, "credit sale %s needs a customer", s.InvoiceNumber)
	}

	net := ledger.Round2(s.NetTotal)
	tax := ledger.Round2(s.TaxAmount)
	disc := ledger.Round2(s.Discount)
	gross := net.Add(disc).Sub(tax)

	cost, err := lineCost(ctx, c.costs, s.Items)
	if err != nil {
		return Posting{}, fmt.Errorf("cost invoice %s: %w", s.InvoiceNumber, err)
	}

	desc := "Sale - Invoice #" + s.InvoiceNumber
	cogsDesc := "COGS - Invoice #" + s.InvoiceNumber
	var ls lines
	ls.signed(c.paymentAccount(s.Method), net, desc)
	ls.signed(c.chart.ID(ledger.RoleDiscount), disc, "Discount on Invoice #"+s.InvoiceNumber)
	ls.signed(c.chart.ID(ledger.RoleSalesRevenue), gross.Neg(), desc)
	ls.signed(c.chart.ID(ledger.RoleTaxPayable), tax.Neg(), "Tax on Invoice #"+s.InvoiceNumber)
	ls.signed(c.chart.ID(ledger.RoleCOGS), cost, cogsDesc)
	ls.signed(c.chart.ID(ledger.RoleInventory), cost.Neg(), cogsDesc)

	event := "sale " + s.InvoiceNumber
	// an even exchange nets every component to zero
	if len(ls) == 0 {
		return Posting{Event: event}, nil
	}

	planned := PlannedEntry{
		Draft: ledger.EntryDraft{
			Date:            s.Date,
			TransactionType: ledger.TxSale,
			ReferenceType:   ledger.RefInvoice,
			ReferenceID:     s.InvoiceID,
			Description:     desc,
			Lines:           ls,
			CreatedBy:       s.CreatedBy,
		},
	}
	if s.Method == MethodCredit && !net.IsZero() {
		planned.Rows = append(planned.Rows, rowFor(ledger.KindCustomer, s.CustomerID, net, s.InvoiceNumber))
	}
	return Posting{Event: event, Entries: []PlannedEntry{planned}}, nil
}

func (c *Composer) paymentAccount(m PaymentMethod) ledger.AccountID {
	switch m {
	case MethodCard, MethodBank:
		return c.chart.ID(ledger.RoleBank)
	case MethodCredit:
		return c.chart.ID(ledger.RoleReceivable)
	default:
		return c.chart.ID(ledger.RoleCash)
	}
}

// =============================================================================
// INVOICE TOTALS
// =============================================================================

// InvoiceLine is a priced invoice line. Quantity is negative for returns.
type InvoiceLine struct {
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	TaxPercent      decimal.Decimal
	DiscountPercent decimal.Decimal
}

type InvoiceTotals struct {
	SubTotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Net      decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ComputeInvoiceTotals sums signed per-line amounts across sale and return
// lines: line = qty×price, tax = line×tax%, discount = line×disc%.
// invoiceDiscount is an extra flat discount on the whole invoice.
func ComputeInvoiceTotals(items []InvoiceLine, invoiceDiscount decimal.Decimal) InvoiceTotals {
	sub, tax, disc := decimal.Zero, decimal.Zero, decimal.Zero
	for _, it := range items {
		line := it.Quantity.Mul(it.UnitPrice)
		sub = sub.Add(line)
		tax = tax.Add(line.Mul(it.TaxPercent).Div(hundred))
		disc = disc.Add(line.Mul(it.DiscountPercent).Div(hundred))
	}
	disc = disc.Add(invoiceDiscount)

	t := InvoiceTotals{
		SubTotal: ledger.Round2(sub),
		Tax:      ledger.Round2(tax),
		Discount: ledger.Round2(disc),
	}
	t.Net = t.SubTotal.Add(t.Tax).Sub(t.Discount)
	return t
}
