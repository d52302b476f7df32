package compose

import (
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// PURCHASE (GRN)
// =============================================================================
//
// A goods-received note always goes through the payable, whatever the
// payment mode, so the supplier's history shows both the bill and its
// settlement:
//
//   Entry 1 (Purchase):  Dr Inventory      landed cost (excl. advance tax)
//                        Dr Advance Tax    advance tax, if any
//                          Cr Payable      net total
//   Entry 2 (Payment, immediate modes only):
//                        Dr Payable        net total
//                          Cr Cash/Bank    net total
//
// landed = sub_total + loading + freight + other + purchase_tax - discount

type PaymentMode string

const (
	ModeCash   PaymentMode = "Cash"
	ModeBank   PaymentMode = "Bank"
	ModeCredit PaymentMode = "Credit"
)

func (m PaymentMode) Valid() bool {
	return m == ModeCash || m == ModeBank || m == ModeCredit
}

// Immediate reports whether the GRN is paid on receipt.
func (m PaymentMode) Immediate() bool { return m == ModeCash || m == ModeBank }

type GRN struct {
	GRNID       int64
	GRNNumber   string
	Date        ledger.Date
	SupplierID  ledger.EntityID
	SubTotal    decimal.Decimal
	Discount    decimal.Decimal
	Loading     decimal.Decimal
	Freight     decimal.Decimal
	Other       decimal.Decimal
	PurchaseTax decimal.Decimal
	AdvanceTax  decimal.Decimal
	NetTotal    decimal.Decimal
	Mode        PaymentMode
	CreatedBy   string
}

// LandedCost is what the goods cost on the shelf, excluding advance tax.
func (g GRN) LandedCost() decimal.Decimal {
	return ledger.Round2(g.SubTotal.Add(g.Loading).Add(g.Freight).Add(g.Other).
		Add(g.PurchaseTax).Sub(g.Discount))
}

// Purchase composes the purchase entry and, for immediate modes, the
// payment entry. Both land in one Posting.
func (c *Composer) Purchase(g GRN) (Posting, error) {
	if !g.Mode.Valid() {
		return Posting{}, ledger.Invalid(ledger.CodeBadType, "unknown payment mode %q", g.Mode)
	}
	if g.SupplierID == 0 {
		return Posting{}, ledger.Invalid(ledger.CodeNoCounterparty, "GRN %s has no supplier", g.GRNNumber)
	}
	net := ledger.Round2(g.NetTotal)
	advance := ledger.Round2(g.AdvanceTax)
	landed := g.LandedCost()
	if !net.IsPositive() {
		return Posting{}, ledger.Invalid(ledger.CodeBadAmount, "GRN %s net total must be positive", g.GRNNumber)
	}
	if advance.IsNegative() || landed.IsNegative() {
		return Posting{}, ledger.Invalid(ledger.CodeNegativeAmount, "GRN %s has a negative component", g.GRNNumber)
	}
	if !landed.Add(advance).Equal(net) {
		return Posting{}, ledger.Invalid(ledger.CodeUnbalancedSource,
			"GRN %s: landed cost %s + advance tax %s != net total %s",
			g.GRNNumber, landed.StringFixed(2), advance.StringFixed(2), net.StringFixed(2))
	}

	payable := c.chart.ID(ledger.RolePayable)
	desc := "Purchase - GRN #" + g.GRNNumber + " (" + string(g.Mode) + ")"

	var ls lines
	ls.debit(c.chart.ID(ledger.RoleInventory), landed, "Inventory - GRN #"+g.GRNNumber+" (Landed Cost exc. Advance Tax)")
	ls.debit(c.chart.ID(ledger.RoleAdvanceTax), advance, "Advance Tax - GRN #"+g.GRNNumber)
	ls.credit(payable, net, "Accounts Payable - GRN #"+g.GRNNumber)

	posting := Posting{
		Event: "purchase " + g.GRNNumber,
		Entries: []PlannedEntry{{
			Draft: ledger.EntryDraft{
				Date:            g.Date,
				TransactionType: ledger.TxPurchase,
				ReferenceType:   ledger.RefGRN,
				ReferenceID:     g.GRNID,
				Description:     desc,
				Lines:           ls,
				CreatedBy:       g.CreatedBy,
			},
			Rows: []PlannedRow{rowFor(ledger.KindSupplier, g.SupplierID, net.Neg(), g.GRNNumber)},
		}},
	}

	if g.Mode.Immediate() {
		payDesc := "Immediate " + string(g.Mode) + " Payment - GRN #" + g.GRNNumber
		from := c.chart.ID(ledger.RoleCash)
		if g.Mode == ModeBank {
			from = c.chart.ID(ledger.RoleBank)
		}
		posting.Entries = append(posting.Entries, PlannedEntry{
			Draft: ledger.EntryDraft{
				Date:            g.Date,
				TransactionType: ledger.TxPayment,
				ReferenceType:   ledger.RefGRN,
				ReferenceID:     g.GRNID,
				Description:     payDesc,
				Lines: []ledger.LineDraft{
					ledger.Debit(payable, net, "Payment for GRN #"+g.GRNNumber),
					ledger.Credit(from, net, "Payment for GRN #"+g.GRNNumber),
				},
				CreatedBy: g.CreatedBy,
			},
			Rows: []PlannedRow{rowFor(ledger.KindSupplier, g.SupplierID, net, g.GRNNumber)},
		})
	}
	return posting, nil
}
