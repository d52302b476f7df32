/*
journal.go - Balanced entry creation, numbering and reversal

PURPOSE:
  The Journal is the only writer of entries. It validates a draft against
  the double-entry invariants, allocates the entry number, writes header and
  lines in one unit of work and applies each line to the account's cached
  balance.

CRITICAL INVARIANTS:
  1. BALANCED: sum(debit) == sum(credit) for every entry
  2. LINE SHAPE: exactly one of debit/credit is > 0, the other is exactly 0
  3. NO PARTIAL WRITES: a rejected or failed entry leaves nothing behind
  4. IMMUTABLE: corrections are reversing entries, never edits

NUMBERING:
  <PREFIX>-<YEAR>-<00000>, prefix fixed per transaction type, year taken from
  the entry date. The sequence is an atomic increment-and-fetch on a per
  (prefix, year) counter inside the same transaction as the entry, so
  concurrent writers serialize on the counter row. If a number still
  collides (e.g. entries imported behind the counter's back) the store
  reports ErrIntegrity and the whole unit of work is retried with backoff.

UNIT OF WORK:
  WithTransaction(fn) spans every entry and ledger row of one business
  event (purchase + auto-payment, sale + COGS). Composers post through it.

SEE ALSO:
  - store.go: TxStore.WithTx
  - balance.go: the cached balance this file maintains
  - compose/poster.go: multi-entry business events
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// =============================================================================
// JOURNAL
// =============================================================================

type Journal struct {
	store      TxStore
	logger     zerolog.Logger
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

type JournalOption func(*Journal)

// WithLogger sets the journal's logger. The default discards output.
func WithLogger(l zerolog.Logger) JournalOption {
	return func(j *Journal) { j.logger = l }
}

// WithRetry bounds how long a conflicting unit of work is retried.
func WithRetry(maxElapsed time.Duration) JournalOption {
	return func(j *Journal) {
		j.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			b.MaxElapsedTime = maxElapsed
			return b
		}
	}
}

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) JournalOption {
	return func(j *Journal) { j.now = now }
}

func NewJournal(store TxStore, opts ...JournalOption) *Journal {
	j := &Journal{
		store:  store,
		logger: zerolog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	WithRetry(2 * time.Second)(j)
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Store exposes the underlying store for read-side components.
func (j *Journal) Store() TxStore { return j.store }

// WithTransaction runs fn as one unit of work. Integrity conflicts retry the
// whole unit; every other error is returned as-is after rollback.
func (j *Journal) WithTransaction(ctx context.Context, fn func(Store) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := j.store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			j.logger.Warn().Err(err).Int("attempt", attempt).Msg("unit of work conflicted, retrying")
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, backoff.WithContext(j.newBackOff(), ctx))
}

// CreateEntry validates and writes one entry in its own unit of work.
func (j *Journal) CreateEntry(ctx context.Context, draft EntryDraft) (*JournalEntry, error) {
	var entry *JournalEntry
	err := j.WithTransaction(ctx, func(s Store) error {
		e, err := j.Post(ctx, s, draft)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Post writes one entry inside an open unit of work. Callers that need
// several entries to commit together use this from WithTransaction.
func (j *Journal) Post(ctx context.Context, s Store, draft EntryDraft) (*JournalEntry, error) {
	accounts, err := ValidateDraft(ctx, s, draft)
	if err != nil {
		return nil, err
	}

	prefix := draft.TransactionType.EntryPrefix()
	year := draft.Date.Year()
	seq, err := s.NextSequence(ctx, prefix, year)
	if err != nil {
		return nil, fmt.Errorf("allocate entry number: %w", err)
	}

	debit, credit := draft.Totals()
	entry := &JournalEntry{
		Number:          FormatEntryNumber(prefix, year, seq),
		Date:            draft.Date,
		TransactionType: draft.TransactionType,
		ReferenceType:   draft.ReferenceType,
		ReferenceID:     draft.ReferenceID,
		Description:     draft.Description,
		TotalDebit:      debit,
		TotalCredit:     credit,
		IsPosted:        !draft.Unposted,
		CreatedBy:       draft.CreatedBy,
		CreatedAt:       j.now(),
		Lines:           make([]Line, len(draft.Lines)),
	}
	if entry.ReferenceType == "" {
		entry.ReferenceType = RefManual
	}
	for i, l := range draft.Lines {
		entry.Lines[i] = Line{
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
			LineNumber:  i + 1,
		}
	}

	if err := s.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}

	if entry.IsPosted {
		for _, l := range entry.Lines {
			delta := accounts[l.AccountID].Type.SignedDelta(l.Debit, l.Credit)
			if err := s.AddToCachedBalance(ctx, l.AccountID, delta); err != nil {
				return nil, fmt.Errorf("update cached balance: %w", err)
			}
		}
	}

	j.logger.Debug().
		Str("entry", entry.Number).
		Str("type", string(entry.TransactionType)).
		Str("total", entry.TotalDebit.StringFixed(MoneyPlaces)).
		Int("lines", len(entry.Lines)).
		Msg("journal entry written")
	return entry, nil
}

// FormatEntryNumber renders <PREFIX>-<YEAR>-<00000>.
func FormatEntryNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, seq)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateDraft checks every invariant of a draft and resolves its accounts.
// Shape errors are reported before reference errors.
func ValidateDraft(ctx context.Context, s AccountStore, draft EntryDraft) (map[AccountID]*Account, error) {
	if !draft.TransactionType.Valid() {
		return nil, invalid(CodeBadType, "unknown transaction type %q", draft.TransactionType)
	}
	if draft.Date.IsZero() {
		return nil, invalid(CodeBadDate, "entry date is required")
	}
	if len(draft.Lines) < 2 {
		return nil, invalid(CodeTooFewLines, "an entry needs at least 2 lines, got %d", len(draft.Lines))
	}

	for i, l := range draft.Lines {
		n := i + 1
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return nil, invalid(CodeNegativeAmount, "line %d has a negative amount", n)
		}
		if !IsMoney(l.Debit) || !IsMoney(l.Credit) {
			return nil, invalid(CodePrecision, "line %d has more than %d decimals", n, MoneyPlaces)
		}
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return nil, invalid(CodeBadLineShape, "line %d must have exactly one of debit or credit", n)
		}
	}

	debit, credit := draft.Totals()
	if !debit.Equal(credit) {
		return nil, invalid(CodeUnbalanced, "debits (%s) != credits (%s)",
			debit.StringFixed(MoneyPlaces), credit.StringFixed(MoneyPlaces))
	}

	accounts := make(map[AccountID]*Account, len(draft.Lines))
	for _, l := range draft.Lines {
		if _, seen := accounts[l.AccountID]; seen {
			continue
		}
		acct, err := s.GetAccount(ctx, l.AccountID)
		if err != nil {
			return nil, err
		}
		if !acct.IsActive {
			return nil, invalid(CodeInactiveAccount, "account %s is inactive", acct.Code)
		}
		accounts[l.AccountID] = acct
	}
	return accounts, nil
}

// =============================================================================
// READS & REVERSALS
// =============================================================================

func (j *Journal) GetEntry(ctx context.Context, id EntryID) (*JournalEntry, error) {
	return j.store.GetEntry(ctx, id)
}

func (j *Journal) ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, error) {
	return j.store.ListEntries(ctx, filter)
}

// Reverse posts the mirror image of a posted entry (debits and credits
// swapped) dated 'date'. The original stays untouched. An entry can be
// reversed once.
func (j *Journal) Reverse(ctx context.Context, id EntryID, date Date, description, createdBy string) (*JournalEntry, error) {
	var reversal *JournalEntry
	err := j.WithTransaction(ctx, func(s Store) error {
		orig, err := s.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if !orig.IsPosted {
			return invalid(CodeNotPosted, "entry %s is not posted", orig.Number)
		}
		refID := int64(orig.ID)
		existing, err := s.ListEntries(ctx, EntryFilter{ReferenceType: RefReversal, ReferenceID: &refID})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return invalid(CodeAlreadyReversed, "entry %s already reversed by %s", orig.Number, existing[0].Number)
		}

		if description == "" {
			description = "Reversal of " + orig.Number
		}
		draft := EntryDraft{
			Date:            date,
			TransactionType: orig.TransactionType,
			ReferenceType:   RefReversal,
			ReferenceID:     refID,
			Description:     description,
			CreatedBy:       createdBy,
		}
		for _, l := range orig.Lines {
			draft.Lines = append(draft.Lines, LineDraft{
				AccountID:   l.AccountID,
				Debit:       l.Credit,
				Credit:      l.Debit,
				Description: description,
			})
		}
		e, err := j.Post(ctx, s, draft)
		if err != nil {
			return err
		}
		reversal = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversal, nil
}
