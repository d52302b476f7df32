/*
balance.go - Point-in-time account balances

PURPOSE:
  An account's balance as of a date is its opening balance plus the signed
  sum of every posted line dated on or before that date. It is computed
  from the entry log every time; Account.CurrentBalance is only a
  performance hint and RebuildAccountCaches can regenerate it.

FORMULA:
  balanceAsOf(a, d) = a.opening + signAdjust(a.type, Σdebit, Σcredit)
    Asset/Expense:            Σdebit - Σcredit
    Liability/Equity/Revenue: Σcredit - Σdebit

SEE ALSO:
  - journal.go: maintains the cache on every posting
  - report/: trial balance and balance sheet replay through here
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type BalanceCalculator struct {
	store Store
}

func NewBalanceCalculator(store Store) *BalanceCalculator {
	return &BalanceCalculator{store: store}
}

// BalanceAsOf replays the log for one account up to and including asOf.
func (b *BalanceCalculator) BalanceAsOf(ctx context.Context, id AccountID, asOf Date) (decimal.Decimal, error) {
	acct, err := b.store.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return b.balanceOf(ctx, acct, asOf)
}

// BalanceOf is BalanceAsOf for an account already in hand.
func (b *BalanceCalculator) BalanceOf(ctx context.Context, acct *Account, asOf Date) (decimal.Decimal, error) {
	return b.balanceOf(ctx, acct, asOf)
}

func (b *BalanceCalculator) balanceOf(ctx context.Context, acct *Account, asOf Date) (decimal.Decimal, error) {
	debit, credit, err := b.store.AccountTotals(ctx, acct.ID, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum lines for %s: %w", acct.Code, err)
	}
	return acct.OpeningBalance.Add(acct.Type.SignedDelta(debit, credit)), nil
}

// PeriodMovement is the signed movement of an account over [from, to],
// ignoring everything before 'from' and the opening balance.
func (b *BalanceCalculator) PeriodMovement(ctx context.Context, acct *Account, from, to Date) (decimal.Decimal, error) {
	debit, credit, err := b.store.PeriodTotals(ctx, acct.ID, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum period lines for %s: %w", acct.Code, err)
	}
	return acct.Type.SignedDelta(debit, credit), nil
}

// CachedBalance returns the account's running-balance cache.
func (b *BalanceCalculator) CachedBalance(ctx context.Context, id AccountID) (decimal.Decimal, error) {
	acct, err := b.store.GetAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.CurrentBalance, nil
}

// =============================================================================
// CACHE REBUILD
// =============================================================================

// CacheDrift records a cache that disagreed with the replayed log.
type CacheDrift struct {
	Kind     string // "account" or an EntityKind
	ID       int64
	Label    string
	Cached   decimal.Decimal
	Replayed decimal.Decimal
}

// RebuildAccountCaches recomputes every account's CurrentBalance from the
// whole posted log and returns the caches it had to correct.
func RebuildAccountCaches(ctx context.Context, store TxStore) ([]CacheDrift, error) {
	var drifts []CacheDrift
	err := store.WithTx(ctx, func(s Store) error {
		drifts = nil
		accounts, err := s.ListAccounts(ctx, AccountFilter{})
		if err != nil {
			return err
		}
		totals, err := s.AllPostedTotals(ctx)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			t := totals[a.ID]
			replayed := a.OpeningBalance.Add(a.Type.SignedDelta(t[0], t[1]))
			if replayed.Equal(a.CurrentBalance) {
				continue
			}
			drifts = append(drifts, CacheDrift{
				Kind:     "account",
				ID:       int64(a.ID),
				Label:    a.Code,
				Cached:   a.CurrentBalance,
				Replayed: replayed,
			})
			if err := s.SetCachedBalance(ctx, a.ID, replayed); err != nil {
				return err
			}
		}
		return nil
	})
	return drifts, err
}
