package report

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

type AgingItem struct {
	EntityID   ledger.EntityID `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	ledger.AgingBuckets
}

type AgingReport struct {
	Kind   ledger.EntityKind   `json:"kind"`
	AsOf   ledger.Date         `json:"as_of"`
	Items  []AgingItem         `json:"items"`
	Totals ledger.AgingBuckets `json:"totals"`
}

// Aging buckets every counterparty of kind that owes (or is owed) a
// positive balance at asOf. Suppliers give AP aging, customers AR aging.
func (g *Generator) Aging(ctx context.Context, kind ledger.EntityKind, asOf ledger.Date) (*AgingReport, error) {
	if !kind.Valid() {
		return nil, ledger.Invalid(ledger.CodeBadType, "unknown counterparty kind %q", kind)
	}
	ids, err := g.store.EntitiesWithRows(ctx, kind)
	if err != nil {
		return nil, err
	}

	rep := &AgingReport{Kind: kind, AsOf: asOf, Totals: ledger.AgeRows(kind, nil, decimal.Zero, asOf)}
	for _, id := range ids {
		b, ok, err := g.aging.AgeBalance(ctx, kind, id, asOf)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		name := ""
		if cp, err := g.store.GetCounterparty(ctx, kind, id); err == nil {
			name = cp.Name
		} else if !ledger.IsNotFound(err) {
			return nil, err
		}
		rep.Items = append(rep.Items, AgingItem{EntityID: id, EntityName: name, AgingBuckets: b})

		t := &rep.Totals
		t.Current = t.Current.Add(b.Current)
		t.Days30 = t.Days30.Add(b.Days30)
		t.Days60 = t.Days60.Add(b.Days60)
		t.Days90 = t.Days90.Add(b.Days90)
		t.Over90 = t.Over90.Add(b.Over90)
		t.Total = t.Total.Add(b.Total)
	}
	return rep, nil
}
