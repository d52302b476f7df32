/*
store.go - Persistence interface for the chart, the entry log and ledger rows

PURPOSE:
  Defines the boundary between bookkeeping logic and the database. One Store
  is one tenant's isolated namespace; nothing in it ever references another
  tenant.

KEY INTERFACES:
  AccountStore:      chart of accounts + the cached current_balance
  EntryStore:        append-only entries/lines + per (prefix, year) sequences
  SubLedgerStore:    append-only supplier/customer rows + counterparty mirror
  Store:             all of the above
  TxStore:           Store with a unit-of-work boundary (WithTx)

APPEND-ONLY CONTRACT:
  Entries, lines and ledger rows have Insert and read methods only. The two
  mutable things are caches (account current_balance, counterparty
  ledger_balance) and both can be rebuilt from the log.

ATOMIC UNITS:
  WithTx runs fn against a transaction-bound Store. If fn returns an error
  nothing fn wrote is kept; readers never observe a half-written entry.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite, one database file per tenant
  - ledger/store/memory.go: in-memory, for tests and demos

SEE ALSO:
  - journal.go: the only writer of entries
  - subledger.go: the only writer of ledger rows
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

type AccountFilter struct {
	Type       AccountType // empty = all
	ActiveOnly bool
}

type EntryFilter struct {
	From            *Date
	To              *Date
	TransactionType TransactionType // empty = all
	ReferenceType   ReferenceType   // empty = all
	ReferenceID     *int64
	PostedOnly      bool
}

type RowFilter struct {
	From *Date
	To   *Date
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

type AccountStore interface {
	// CreateAccount inserts the account and sets its ID.
	// Returns ErrDuplicateAccountCode if the code exists.
	CreateAccount(ctx context.Context, a *Account) error

	// GetAccount returns a ReferenceError if the account does not exist.
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	GetAccountByCode(ctx context.Context, code string) (*Account, error)

	// ListAccounts returns accounts ordered by code.
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)

	SetAccountActive(ctx context.Context, id AccountID, active bool) error

	// AddToCachedBalance and SetCachedBalance maintain current_balance.
	AddToCachedBalance(ctx context.Context, id AccountID, delta decimal.Decimal) error
	SetCachedBalance(ctx context.Context, id AccountID, balance decimal.Decimal) error
}

type EntryStore interface {
	// NextSequence atomically increments and returns the counter for
	// (prefix, year). The first call for a key returns 1.
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)

	// InsertEntry writes the header and all lines, setting IDs.
	// Returns an IntegrityError if the entry number exists.
	InsertEntry(ctx context.Context, e *JournalEntry) error

	// GetEntry returns the entry with its lines, or a ReferenceError.
	GetEntry(ctx context.Context, id EntryID) (*JournalEntry, error)

	// ListEntries returns entries with lines ordered by (date, id).
	ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, error)

	// AccountTotals sums posted debit/credit for an account over entries
	// dated on or before asOf.
	AccountTotals(ctx context.Context, id AccountID, asOf Date) (debit, credit decimal.Decimal, err error)

	// PeriodTotals sums posted debit/credit for entries dated in [from, to].
	PeriodTotals(ctx context.Context, id AccountID, from, to Date) (debit, credit decimal.Decimal, err error)

	// AccountLines returns posted lines for an account dated in [from, to],
	// ordered by (entry date, entry id, line number).
	AccountLines(ctx context.Context, id AccountID, from, to Date) ([]PostedLine, error)

	// AllPostedTotals sums posted debit/credit per account over the whole log.
	AllPostedTotals(ctx context.Context) (map[AccountID][2]decimal.Decimal, error)
}

type SubLedgerStore interface {
	// CreateCounterparty registers a supplier/customer in the tenant mirror.
	CreateCounterparty(ctx context.Context, c *Counterparty) error
	GetCounterparty(ctx context.Context, kind EntityKind, id EntityID) (*Counterparty, error)
	ListCounterparties(ctx context.Context, kind EntityKind) ([]Counterparty, error)
	SetLedgerBalance(ctx context.Context, kind EntityKind, id EntityID, balance decimal.Decimal) error

	// LastRow returns the latest row by (date, id), or nil if none.
	LastRow(ctx context.Context, kind EntityKind, id EntityID) (*LedgerRow, error)

	// LastRowAsOf returns the latest row dated on or before asOf, or nil.
	LastRowAsOf(ctx context.Context, kind EntityKind, id EntityID, asOf Date) (*LedgerRow, error)

	// InsertRow appends a row and sets its ID.
	InsertRow(ctx context.Context, row *LedgerRow) error

	// Rows returns rows ordered by (date, id).
	Rows(ctx context.Context, kind EntityKind, id EntityID, filter RowFilter) ([]LedgerRow, error)

	// EntitiesWithRows lists entity ids that have at least one row.
	EntitiesWithRows(ctx context.Context, kind EntityKind) ([]EntityID, error)
}

// Store handles persistence for one tenant.
type Store interface {
	AccountStore
	EntryStore
	SubLedgerStore
}

// TxStore wraps Store with a unit-of-work boundary.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, everything fn wrote is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
