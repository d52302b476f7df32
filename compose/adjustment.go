package compose

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

type AdjustmentType string

const (
	AdjustReturnToSupplier AdjustmentType = "return_to_supplier"
	AdjustDamage           AdjustmentType = "damage"
	AdjustExpiry           AdjustmentType = "expiry"
	AdjustCount            AdjustmentType = "count_correction"
)

type Adjustment struct {
	AdjustmentID int64
	Date         ledger.Date
	Type         AdjustmentType
	SupplierID   ledger.EntityID // optional; no supplier means no ledger row
	ProductID    int64
	BatchID      int64
	BatchNumber  string
	Quantity     decimal.Decimal // sign ignored
	UnitCost     *decimal.Decimal
	CreatedBy    string
}

// Adjustment composes a stock adjustment. Only a return to supplier with a
// nonzero value touches the books (Dr Payable / Cr Inventory); every other
// adjustment is stock-only and yields an empty Posting.
func (c *Composer) Adjustment(ctx context.Context, a Adjustment) (Posting, error) {
	event := "adjustment " + strconv.FormatInt(a.AdjustmentID, 10)
	if a.Type != AdjustReturnToSupplier {
		return Posting{Event: event}, nil
	}

	cost := a.UnitCost
	if cost == nil {
		uc, err := c.costs.UnitCost(ctx, a.ProductID, a.BatchID)
		if err != nil {
			return Posting{}, fmt.Errorf("cost adjustment %d: %w", a.AdjustmentID, err)
		}
		cost = &uc
	}
	qty := a.Quantity.Abs()
	value := ledger.Round2(cost.Mul(qty))
	if !value.IsPositive() {
		return Posting{Event: event}, nil
	}

	lineDesc := fmt.Sprintf("Supplier Return - Adjustment #%d (Batch: %s)", a.AdjustmentID, a.BatchNumber)
	planned := PlannedEntry{
		Draft: ledger.EntryDraft{
			Date:            a.Date,
			TransactionType: ledger.TxAdjustment,
			ReferenceType:   ledger.RefAdjustment,
			ReferenceID:     a.AdjustmentID,
			Description:     fmt.Sprintf("Stock Return to Supplier - Adj #%d - Qty: %s", a.AdjustmentID, qty),
			Lines: []ledger.LineDraft{
				ledger.Debit(c.chart.ID(ledger.RolePayable), value, lineDesc),
				ledger.Credit(c.chart.ID(ledger.RoleInventory), value, lineDesc),
			},
			CreatedBy: a.CreatedBy,
		},
	}
	if a.SupplierID != 0 {
		row := rowFor(ledger.KindSupplier, a.SupplierID, value, fmt.Sprintf("ADJ-%d", a.AdjustmentID))
		row.Description = fmt.Sprintf("Returns - Adj #%d", a.AdjustmentID)
		planned.Rows = append(planned.Rows, row)
	}
	return Posting{Event: event, Entries: []PlannedEntry{planned}}, nil
}
