/*
subledger.go - Supplier and customer running-balance logs

PURPOSE:
  A subsidiary ledger mirrors, per counterparty, every journal entry that
  touches that counterparty's payable or receivable. Each row snapshots the
  running balance at insert time, so a statement never needs replay, while
  replay is still possible from the debit/credit columns.

SIGN CONVENTION:
  supplier (payable, a liability):   balance += credit - debit
  customer (receivable, an asset):   balance += debit - credit

ORDERING:
  Rows for an entity are appended in non-decreasing date order. A row dated
  before the entity's last row is rejected, which keeps insertion order and
  (date, id) order identical and makes the snapshot invariant checkable:
    row.balance == prev.balance + signedDelta(row)

COUNTERPARTY CACHE:
  Counterparty.LedgerBalance is a denormalized copy of the last row's
  balance, refreshed in the same unit of work as the row. The last row is
  the truth; RebuildEntityCaches restores the copy.

SEE ALSO:
  - aging.go: buckets the balance these rows produce
  - compose/poster.go: writes rows alongside their entries
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTITY KINDS
// =============================================================================

type EntityKind string

const (
	KindSupplier EntityKind = "supplier"
	KindCustomer EntityKind = "customer"
)

func (k EntityKind) Valid() bool { return k == KindSupplier || k == KindCustomer }

// SignedDelta is a row's effect on the entity's balance.
func (k EntityKind) SignedDelta(debit, credit decimal.Decimal) decimal.Decimal {
	if k == KindCustomer {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// Increasing returns the side of a row that grows the balance:
// credit for suppliers, debit for customers.
func (k EntityKind) Increasing(row LedgerRow) decimal.Decimal {
	if k == KindCustomer {
		return row.Debit
	}
	return row.Credit
}

// =============================================================================
// TYPES
// =============================================================================

// Counterparty is the tenant's mirror of a supplier/customer master record.
type Counterparty struct {
	ID            EntityID
	Kind          EntityKind
	Name          string
	LedgerBalance decimal.Decimal
	CreatedAt     time.Time
}

type LedgerRow struct {
	ID          int64
	Kind        EntityKind
	EntityID    EntityID
	EntryID     EntryID
	Date        Date
	Type        TransactionType
	Reference   string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.Decimal
	CreatedAt   time.Time
}

// RowDraft is a ledger row before its balance is fixed.
type RowDraft struct {
	Kind        EntityKind
	EntityID    EntityID
	EntryID     EntryID
	Date        Date
	Type        TransactionType
	Reference   string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// =============================================================================
// APPEND
// =============================================================================

// AppendRow fixes the running balance of a new row from the entity's last
// row (or zero), writes it, and refreshes the counterparty cache. It must
// run in the same unit of work as the entry it references.
func AppendRow(ctx context.Context, s Store, d RowDraft) (*LedgerRow, error) {
	if !d.Kind.Valid() {
		return nil, invalid(CodeBadType, "unknown counterparty kind %q", d.Kind)
	}
	if d.Date.IsZero() {
		return nil, invalid(CodeBadDate, "ledger row date is required")
	}
	if d.Debit.IsNegative() || d.Credit.IsNegative() {
		return nil, invalid(CodeNegativeAmount, "ledger row has a negative amount")
	}
	if d.Debit.IsPositive() == d.Credit.IsPositive() {
		return nil, invalid(CodeBadLineShape, "ledger row must have exactly one of debit or credit")
	}
	if _, err := s.GetCounterparty(ctx, d.Kind, d.EntityID); err != nil {
		return nil, err
	}
	if _, err := s.GetEntry(ctx, d.EntryID); err != nil {
		return nil, err
	}

	last, err := s.LastRow(ctx, d.Kind, d.EntityID)
	if err != nil {
		return nil, fmt.Errorf("load last ledger row: %w", err)
	}
	prev := decimal.Zero
	if last != nil {
		if d.Date.Before(last.Date) {
			return nil, invalid(CodeBackdatedRow, "%s %d: row dated %s precedes last row dated %s",
				d.Kind, d.EntityID, d.Date, last.Date)
		}
		prev = last.Balance
	}

	row := &LedgerRow{
		Kind:        d.Kind,
		EntityID:    d.EntityID,
		EntryID:     d.EntryID,
		Date:        d.Date,
		Type:        d.Type,
		Reference:   d.Reference,
		Description: d.Description,
		Debit:       d.Debit,
		Credit:      d.Credit,
		Balance:     prev.Add(d.Kind.SignedDelta(d.Debit, d.Credit)),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.InsertRow(ctx, row); err != nil {
		return nil, err
	}
	if err := s.SetLedgerBalance(ctx, d.Kind, d.EntityID, row.Balance); err != nil {
		return nil, fmt.Errorf("refresh counterparty balance: %w", err)
	}
	return row, nil
}

// =============================================================================
// READS
// =============================================================================

// Statement is a counterparty's rows over a range with the balance carried
// in from before the range.
type Statement struct {
	Kind           EntityKind
	EntityID       EntityID
	Name           string
	From           Date
	To             Date
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	Rows           []LedgerRow
}

// BuildStatement re-derives the running balance over [from, to] from the
// debit/credit columns, starting at the balance of the last row before from.
func BuildStatement(ctx context.Context, s SubLedgerStore, kind EntityKind, id EntityID, from, to Date) (*Statement, error) {
	cp, err := s.GetCounterparty(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	opening := decimal.Zero
	before, err := s.LastRowAsOf(ctx, kind, id, from.AddDays(-1))
	if err != nil {
		return nil, err
	}
	if before != nil {
		opening = before.Balance
	}
	rows, err := s.Rows(ctx, kind, id, RowFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}

	running := opening
	for i := range rows {
		running = running.Add(kind.SignedDelta(rows[i].Debit, rows[i].Credit))
		rows[i].Balance = running
	}
	return &Statement{
		Kind:           kind,
		EntityID:       id,
		Name:           cp.Name,
		From:           from,
		To:             to,
		OpeningBalance: opening,
		ClosingBalance: running,
		Rows:           rows,
	}, nil
}

// RebuildEntityCaches resets every counterparty's LedgerBalance to its last
// row's balance and returns the caches it corrected.
func RebuildEntityCaches(ctx context.Context, store TxStore) ([]CacheDrift, error) {
	var drifts []CacheDrift
	err := store.WithTx(ctx, func(s Store) error {
		drifts = nil
		for _, kind := range []EntityKind{KindSupplier, KindCustomer} {
			cps, err := s.ListCounterparties(ctx, kind)
			if err != nil {
				return err
			}
			for _, cp := range cps {
				last, err := s.LastRow(ctx, kind, cp.ID)
				if err != nil {
					return err
				}
				truth := decimal.Zero
				if last != nil {
					truth = last.Balance
				}
				if truth.Equal(cp.LedgerBalance) {
					continue
				}
				drifts = append(drifts, CacheDrift{
					Kind:     string(kind),
					ID:       int64(cp.ID),
					Label:    cp.Name,
					Cached:   cp.LedgerBalance,
					Replayed: truth,
				})
				if err := s.SetLedgerBalance(ctx, kind, cp.ID, truth); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return drifts, err
}
