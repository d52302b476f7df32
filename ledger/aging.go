/*
aging.go - Outstanding balance bucketing

PURPOSE:
  Splits a counterparty's outstanding balance into age bands without
  per-invoice matching. The balance is assumed to be made of the most
  recent increasing rows (LIFO against the balance): walk credit rows for a
  supplier, or debit rows for a customer, newest first, and assign each
  row's amount (capped at what is still unallocated) to the band for its
  age, until nothing is left.

BANDS (days between row date and asOf):
  0..30    Current
  31..60   Days30
  61..90   Days60
  91..120  Days90
  121..    Over90

  Anything still unallocated after every increasing row is consumed (e.g.
  an opening balance carried in without a row) goes to Over90, so
  Current+Days30+Days60+Days90+Over90 == Total always holds.

EXAMPLE:
  Supplier rows (asOf 2024-07-20): +50 (200d), +200 (45d), +100 (10d)
  Total 350 -> Current 100, Days30 200, Over90 50

SEE ALSO:
  - subledger.go: the rows and running balance
  - report/aging.go: the all-entities report
*/
package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// AgingBuckets is one entity's outstanding balance split by age.
type AgingBuckets struct {
	Current decimal.Decimal `json:"current"`
	Days30  decimal.Decimal `json:"days30"`
	Days60  decimal.Decimal `json:"days60"`
	Days90  decimal.Decimal `json:"days90"`
	Over90  decimal.Decimal `json:"over90"`
	Total   decimal.Decimal `json:"total"`
}

// Sum is the total of the five bands.
func (b AgingBuckets) Sum() decimal.Decimal {
	return b.Current.Add(b.Days30).Add(b.Days60).Add(b.Days90).Add(b.Over90)
}

func (b *AgingBuckets) add(days int, amount decimal.Decimal) {
	switch {
	case days <= 30:
		b.Current = b.Current.Add(amount)
	case days <= 60:
		b.Days30 = b.Days30.Add(amount)
	case days <= 90:
		b.Days60 = b.Days60.Add(amount)
	case days <= 120:
		b.Days90 = b.Days90.Add(amount)
	default:
		b.Over90 = b.Over90.Add(amount)
	}
}

// AgeRows allocates total across rows. rows may be in any order; only rows
// dated on or before asOf are considered. A non-positive total yields empty
// buckets carrying that total.
func AgeRows(kind EntityKind, rows []LedgerRow, total decimal.Decimal, asOf Date) AgingBuckets {
	b := AgingBuckets{
		Current: decimal.Zero,
		Days30:  decimal.Zero,
		Days60:  decimal.Zero,
		Days90:  decimal.Zero,
		Over90:  decimal.Zero,
		Total:   total,
	}
	if !total.IsPositive() {
		return b
	}

	increasing := make([]LedgerRow, 0, len(rows))
	for _, r := range rows {
		if r.Date.After(asOf) || !kind.Increasing(r).IsPositive() {
			continue
		}
		increasing = append(increasing, r)
	}
	// newest first
	sort.SliceStable(increasing, func(i, j int) bool {
		if !increasing[i].Date.Equal(increasing[j].Date) {
			return increasing[i].Date.After(increasing[j].Date)
		}
		return increasing[i].ID > increasing[j].ID
	})

	remaining := total
	for _, r := range increasing {
		if !remaining.IsPositive() {
			break
		}
		amount := decimal.Min(kind.Increasing(r), remaining)
		b.add(DaysBetween(r.Date, asOf), amount)
		remaining = remaining.Sub(amount)
	}
	if remaining.IsPositive() {
		b.Over90 = b.Over90.Add(remaining)
	}
	return b
}

// =============================================================================
// ALLOCATOR
// =============================================================================

type AgingAllocator struct {
	store SubLedgerStore
}

func NewAgingAllocator(store SubLedgerStore) *AgingAllocator {
	return &AgingAllocator{store: store}
}

// AgeBalance buckets one entity's balance as of asOf. ok is false when the
// entity owes (or is owed) nothing at that date.
func (a *AgingAllocator) AgeBalance(ctx context.Context, kind EntityKind, id EntityID, asOf Date) (AgingBuckets, bool, error) {
	last, err := a.store.LastRowAsOf(ctx, kind, id, asOf)
	if err != nil {
		return AgingBuckets{}, false, err
	}
	if last == nil || !last.Balance.IsPositive() {
		total := decimal.Zero
		if last != nil {
			total = last.Balance
		}
		return AgeRows(kind, nil, total, asOf), false, nil
	}
	rows, err := a.store.Rows(ctx, kind, id, RowFilter{To: &asOf})
	if err != nil {
		return AgingBuckets{}, false, err
	}
	return AgeRows(kind, rows, last.Balance, asOf), true, nil
}
