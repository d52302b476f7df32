/*
Package compose turns business events into balanced postings.

PURPOSE:
  A composer is a pure translation: event in, Posting out. It reads nothing
  but the resolved Chart and (for COGS) a CostLookup, and writes nothing.
  The Poster then writes every entry and ledger row of one Posting in a
  single unit of work, so a purchase and its automatic payment, or a sale
  and its COGS, commit or vanish together.

EVENTS:
  Sale             sale, return and exchange on one invoice (signed sums)
  Purchase         GRN, plus a separate payment entry for immediate modes
  Adjustment       inventory adjustment (only returns to supplier post)
  CashVariance     over/short on cash session close
  PaymentVoucher   money out: supplier settlement or expense
  ReceiptVoucher   money in: customer settlement or other income

SEE ALSO:
  - ledger/journal.go: WithTransaction and Post
  - ledger/subledger.go: AppendRow
*/
package compose

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// POSTINGS
// =============================================================================

// Posting is everything one business event writes.
type Posting struct {
	Event   string
	Entries []PlannedEntry

	// VoucherPrefix, when set, allocates a <PREFIX>-<YEAR>-<00000> voucher
	// number in the same unit of work. It becomes the rows' reference.
	VoucherPrefix string
}

// PlannedEntry is one journal entry plus the ledger rows that mirror it.
type PlannedEntry struct {
	Draft ledger.EntryDraft
	Rows  []PlannedRow
}

// PlannedRow takes its date, type and entry id from the entry it follows.
type PlannedRow struct {
	Kind        ledger.EntityKind
	EntityID    ledger.EntityID
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Reference   string
	Description string
}

// Empty reports whether the event has no ledger effect.
func (p Posting) Empty() bool { return len(p.Entries) == 0 }

// Result is what a Posting wrote.
type Result struct {
	Voucher string
	Entries []ledger.JournalEntry
	Rows    []ledger.LedgerRow
}

// =============================================================================
// POSTER
// =============================================================================

type Poster struct {
	journal *ledger.Journal
	logger  zerolog.Logger
}

func NewPoster(journal *ledger.Journal, logger zerolog.Logger) *Poster {
	return &Poster{journal: journal, logger: logger}
}

// Post writes the whole posting in one unit of work. An empty posting
// writes nothing and returns an empty result.
func (p *Poster) Post(ctx context.Context, posting Posting) (*Result, error) {
	if posting.Empty() {
		p.logger.Debug().Str("event", posting.Event).Msg("event has no ledger effect")
		return &Result{}, nil
	}

	var result *Result
	err := p.journal.WithTransaction(ctx, func(s ledger.Store) error {
		res := &Result{}
		if posting.VoucherPrefix != "" {
			year := posting.Entries[0].Draft.Date.Year()
			seq, err := s.NextSequence(ctx, posting.VoucherPrefix, year)
			if err != nil {
				return fmt.Errorf("allocate voucher number: %w", err)
			}
			res.Voucher = ledger.FormatEntryNumber(posting.VoucherPrefix, year, seq)
		}

		for _, planned := range posting.Entries {
			entry, err := p.journal.Post(ctx, s, planned.Draft)
			if err != nil {
				return err
			}
			res.Entries = append(res.Entries, *entry)

			for _, pr := range planned.Rows {
				ref := pr.Reference
				if ref == "" {
					ref = res.Voucher
				}
				if ref == "" {
					ref = entry.Number
				}
				desc := pr.Description
				if desc == "" {
					desc = entry.Description
				}
				row, err := ledger.AppendRow(ctx, s, ledger.RowDraft{
					Kind:        pr.Kind,
					EntityID:    pr.EntityID,
					EntryID:     entry.ID,
					Date:        entry.Date,
					Type:        entry.TransactionType,
					Reference:   ref,
					Description: desc,
					Debit:       pr.Debit,
					Credit:      pr.Credit,
				})
				if err != nil {
					return err
				}
				res.Rows = append(res.Rows, *row)
			}
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	numbers := make([]string, len(result.Entries))
	for i, e := range result.Entries {
		numbers[i] = e.Number
	}
	p.logger.Info().
		Str("event", posting.Event).
		Strs("entries", numbers).
		Int("rows", len(result.Rows)).
		Str("voucher", result.Voucher).
		Msg("event posted")
	return result, nil
}

// =============================================================================
// COMPOSER
// =============================================================================

// Composer holds what every translation needs: the tenant's resolved chart
// and a cost source for COGS.
type Composer struct {
	chart *ledger.Chart
	costs CostLookup
}

func NewComposer(chart *ledger.Chart, costs CostLookup) *Composer {
	return &Composer{chart: chart, costs: costs}
}

// lines collects LineDrafts, dropping zero amounts.
type lines []ledger.LineDraft

func (ls *lines) signed(account ledger.AccountID, amount decimal.Decimal, desc string) {
	if l, ok := ledger.Signed(account, amount, desc); ok {
		*ls = append(*ls, l)
	}
}

func (ls *lines) debit(account ledger.AccountID, amount decimal.Decimal, desc string) {
	if amount.IsPositive() {
		*ls = append(*ls, ledger.Debit(account, amount, desc))
	}
}

func (ls *lines) credit(account ledger.AccountID, amount decimal.Decimal, desc string) {
	if amount.IsPositive() {
		*ls = append(*ls, ledger.Credit(account, amount, desc))
	}
}

// rowFor mirrors a signed amount onto a ledger row: positive debits,
// negative credits.
func rowFor(kind ledger.EntityKind, id ledger.EntityID, signed decimal.Decimal, ref string) PlannedRow {
	row := PlannedRow{Kind: kind, EntityID: id, Debit: decimal.Zero, Credit: decimal.Zero, Reference: ref}
	if signed.IsNegative() {
		row.Credit = signed.Neg()
	} else {
		row.Debit = signed
	}
	return row
}
