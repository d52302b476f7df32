package compose

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// CostLookup answers "what did one unit of this stock cost" at the moment of
// sale. The inventory system owns the real answer; CostBook is a stand-in.
type CostLookup interface {
	UnitCost(ctx context.Context, productID, batchID int64) (decimal.Decimal, error)
}

// WeightedAverage blends a receipt into a moving-average unit cost:
//
//	newAvg = (oldQty*oldAvg + recvQty*recvCost) / (oldQty + recvQty)
//
// With nothing on hand (or a non-positive resulting quantity) the receipt
// cost becomes the average.
func WeightedAverage(oldQty, oldAvg, recvQty, recvCost decimal.Decimal) decimal.Decimal {
	if oldQty.IsNegative() {
		oldQty = decimal.Zero
	}
	total := oldQty.Add(recvQty)
	if !total.IsPositive() {
		return recvCost
	}
	value := oldQty.Mul(oldAvg).Add(recvQty.Mul(recvCost))
	return value.DivRound(total, 4)
}

// =============================================================================
// COST BOOK
// =============================================================================

// CostBook keeps a weighted-average unit cost per product. Batches of the
// same product share one average.
type CostBook struct {
	mu       sync.RWMutex
	products map[int64]stockCost
}

type stockCost struct {
	Qty decimal.Decimal
	Avg decimal.Decimal
}

func NewCostBook() *CostBook {
	return &CostBook{products: make(map[int64]stockCost)}
}

// Receive blends qty units at unitCost into the product's average and
// returns the new average.
func (b *CostBook) Receive(productID int64, qty, unitCost decimal.Decimal) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.products[productID]
	avg := WeightedAverage(cur.Qty, cur.Avg, qty, unitCost)
	b.products[productID] = stockCost{Qty: decimal.Max(cur.Qty, decimal.Zero).Add(qty), Avg: avg}
	return avg
}

// Issue removes qty units at the current average (sales, returns to
// supplier). The average itself does not move. Products never received
// are not tracked.
func (b *CostBook) Issue(productID int64, qty decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.products[productID]
	if !ok {
		return
	}
	cur.Qty = cur.Qty.Sub(qty)
	b.products[productID] = cur
}

// UnitCost implements CostLookup. A product that was never received has no
// cost and is reported as not found rather than costed at zero.
func (b *CostBook) UnitCost(_ context.Context, productID, _ int64) (decimal.Decimal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.products[productID]
	if !ok {
		return decimal.Zero, ledger.NotFound("product cost", productID)
	}
	return c.Avg, nil
}

// OnHand returns the quantity and average cost of a product.
func (b *CostBook) OnHand(productID int64) (qty, avg decimal.Decimal) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c := b.products[productID]
	return c.Qty, c.Avg
}

// lineCost is Σ(unitCost × qty) over items, rounded to posting precision.
// Negative quantities (returned units) reduce the total.
func lineCost(ctx context.Context, costs CostLookup, items []SaleItem) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, it := range items {
		cost := it.UnitCost
		if cost == nil {
			c, err := costs.UnitCost(ctx, it.ProductID, it.BatchID)
			if err != nil {
				return decimal.Zero, err
			}
			cost = &c
		}
		total = total.Add(cost.Mul(it.Quantity))
	}
	return ledger.Round2(total), nil
}
