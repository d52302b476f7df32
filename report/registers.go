package report

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// PURCHASE REGISTER
// =============================================================================

type PurchaseRegisterItem struct {
	EntryNumber  string          `json:"entry_number"`
	GRNID        int64           `json:"grn_id"`
	Date         ledger.Date     `json:"date"`
	SupplierID   ledger.EntityID `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	Amount       decimal.Decimal `json:"amount"`
	PaidOnEntry  bool            `json:"paid_on_entry"`
}

type PurchaseRegister struct {
	From        ledger.Date            `json:"from"`
	To          ledger.Date            `json:"to"`
	Items       []PurchaseRegisterItem `json:"items"`
	TotalAmount decimal.Decimal        `json:"total_amount"`
}

// PurchaseRegister lists GRN purchase entries in range. Amount is the
// payable credit; the supplier comes from the ledger row the entry wrote.
func (g *Generator) PurchaseRegister(ctx context.Context, from, to ledger.Date) (*PurchaseRegister, error) {
	entries, err := g.store.ListEntries(ctx, ledger.EntryFilter{
		From: &from, To: &to,
		TransactionType: ledger.TxPurchase,
		ReferenceType:   ledger.RefGRN,
		PostedOnly:      true,
	})
	if err != nil {
		return nil, err
	}
	payments, err := g.store.ListEntries(ctx, ledger.EntryFilter{
		From: &from, To: &to,
		TransactionType: ledger.TxPayment,
		ReferenceType:   ledger.RefGRN,
		PostedOnly:      true,
	})
	if err != nil {
		return nil, err
	}
	paid := make(map[int64]bool, len(payments))
	for _, p := range payments {
		paid[p.ReferenceID] = true
	}
	owners, err := g.entryOwners(ctx, ledger.KindSupplier, from, to)
	if err != nil {
		return nil, err
	}

	payable := g.chart.ID(ledger.RolePayable)
	reg := &PurchaseRegister{From: from, To: to, TotalAmount: decimal.Zero}
	for _, e := range entries {
		amount := decimal.Zero
		for _, l := range e.Lines {
			if l.AccountID == payable {
				amount = amount.Add(l.Credit).Sub(l.Debit)
			}
		}
		cp := owners[e.ID]
		reg.Items = append(reg.Items, PurchaseRegisterItem{
			EntryNumber:  e.Number,
			GRNID:        e.ReferenceID,
			Date:         e.Date,
			SupplierID:   cp.ID,
			SupplierName: cp.Name,
			Amount:       amount,
			PaidOnEntry:  paid[e.ReferenceID],
		})
		reg.TotalAmount = reg.TotalAmount.Add(amount)
	}
	return reg, nil
}

// entryOwners maps entry ids to the counterparty whose rows reference them.
func (g *Generator) entryOwners(ctx context.Context, kind ledger.EntityKind, from, to ledger.Date) (map[ledger.EntryID]ledger.Counterparty, error) {
	cps, err := g.store.ListCounterparties(ctx, kind)
	if err != nil {
		return nil, err
	}
	owners := make(map[ledger.EntryID]ledger.Counterparty)
	for _, cp := range cps {
		rows, err := g.store.Rows(ctx, kind, cp.ID, ledger.RowFilter{From: &from, To: &to})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			owners[r.EntryID] = cp
		}
	}
	return owners, nil
}

// =============================================================================
// SALES REGISTER
// =============================================================================

// WalkIn names sales without a customer row.
const WalkIn = "Walk-in"

type SalesRegisterItem struct {
	EntryNumber  string          `json:"entry_number"`
	InvoiceID    int64           `json:"invoice_id"`
	Date         ledger.Date     `json:"date"`
	CustomerName string          `json:"customer_name"`
	Method       string          `json:"method"`
	Revenue      decimal.Decimal `json:"revenue"`
	Tax          decimal.Decimal `json:"tax"`
	Discount     decimal.Decimal `json:"discount"`
	Net          decimal.Decimal `json:"net"` // negative for returns
}

type SalesRegister struct {
	From         ledger.Date         `json:"from"`
	To           ledger.Date         `json:"to"`
	Items        []SalesRegisterItem `json:"items"`
	TotalSales   decimal.Decimal     `json:"total_sales"`
	TotalReturns decimal.Decimal     `json:"total_returns"`
	NetSales     decimal.Decimal     `json:"net_sales"`
}

// SalesRegister lists invoice sale entries in range, signed by the net
// movement of the payment account. Negative nets count as returns.
func (g *Generator) SalesRegister(ctx context.Context, from, to ledger.Date) (*SalesRegister, error) {
	entries, err := g.store.ListEntries(ctx, ledger.EntryFilter{
		From: &from, To: &to,
		TransactionType: ledger.TxSale,
		ReferenceType:   ledger.RefInvoice,
		PostedOnly:      true,
	})
	if err != nil {
		return nil, err
	}
	owners, err := g.entryOwners(ctx, ledger.KindCustomer, from, to)
	if err != nil {
		return nil, err
	}

	methods := map[ledger.AccountID]string{
		g.chart.ID(ledger.RoleCash):       "Cash",
		g.chart.ID(ledger.RoleBank):       "Bank",
		g.chart.ID(ledger.RoleReceivable): "Credit",
	}
	revenue := g.chart.ID(ledger.RoleSalesRevenue)
	tax := g.chart.ID(ledger.RoleTaxPayable)
	discount := g.chart.ID(ledger.RoleDiscount)

	reg := &SalesRegister{From: from, To: to, TotalSales: decimal.Zero, TotalReturns: decimal.Zero}
	for _, e := range entries {
		item := SalesRegisterItem{
			EntryNumber:  e.Number,
			InvoiceID:    e.ReferenceID,
			Date:         e.Date,
			CustomerName: WalkIn,
			Revenue:      decimal.Zero,
			Tax:          decimal.Zero,
			Discount:     decimal.Zero,
			Net:          decimal.Zero,
		}
		if cp, ok := owners[e.ID]; ok {
			item.CustomerName = cp.Name
		}
		for _, l := range e.Lines {
			if m, ok := methods[l.AccountID]; ok {
				item.Method = m
				item.Net = item.Net.Add(l.Debit).Sub(l.Credit)
			}
			switch l.AccountID {
			case revenue:
				item.Revenue = item.Revenue.Add(l.Credit).Sub(l.Debit)
			case tax:
				item.Tax = item.Tax.Add(l.Credit).Sub(l.Debit)
			case discount:
				item.Discount = item.Discount.Add(l.Debit).Sub(l.Credit)
			}
		}
		if item.Net.IsNegative() {
			reg.TotalReturns = reg.TotalReturns.Add(item.Net.Abs())
		} else {
			reg.TotalSales = reg.TotalSales.Add(item.Net)
		}
		reg.Items = append(reg.Items, item)
	}
	reg.NetSales = reg.TotalSales.Sub(reg.TotalReturns)
	return reg, nil
}
