/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists one tenant's books: the chart of accounts, the append-only entry
  log, the subsidiary ledgers and the counterparty mirror. A tenant is one
  database file, so no row ever references another tenant.

APPEND-ONLY ENFORCEMENT:
  journal_entries, journal_entry_lines and subsidiary_ledger only ever see
  INSERT. The only UPDATE statements touch the two caches
  (accounts.current_balance, counterparties.ledger_balance), the
  is_active flag and the entry_sequences counters.

KEY TABLES:
  accounts:            chart of accounts + cached current_balance
  journal_entries:     entry headers, entry_number UNIQUE
  journal_entry_lines: lines, cascade-owned by their entry
  entry_sequences:     one counter per (prefix, year)
  counterparties:      supplier/customer mirror + cached ledger_balance
  subsidiary_ledger:   per-counterparty running-balance rows

AMOUNTS:
  Stored as decimal strings and summed in Go with shopspring/decimal, never
  as SQLite REAL. Dates are stored as YYYY-MM-DD so text order is date order.

NUMBERING:
  NextSequence is a single upsert with RETURNING, so the increment and the
  read are one statement inside the caller's transaction.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single pooled connection, which
  also makes ":memory:" databases behave as one database.

WAL MODE:
  Opened with WAL so readers do not block the single writer.

USAGE:
  store, err := sqlite.New("./data/acme.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  journal := ledger.NewJournal(store)

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Chart of accounts
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		account_type TEXT NOT NULL,
		parent_id INTEGER REFERENCES accounts(id),
		is_active INTEGER NOT NULL DEFAULT 1,
		opening_balance TEXT NOT NULL DEFAULT '0',
		current_balance TEXT NOT NULL DEFAULT '0',
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_type ON accounts(account_type);

	-- Journal entries (append-only)
	CREATE TABLE IF NOT EXISTS journal_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_number TEXT NOT NULL UNIQUE,
		entry_date TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		reference_type TEXT NOT NULL,
		reference_id INTEGER NOT NULL DEFAULT 0,
		description TEXT,
		total_debit TEXT NOT NULL,
		total_credit TEXT NOT NULL,
		is_posted INTEGER NOT NULL DEFAULT 1,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: replay up to a date, day book ranges
	CREATE INDEX IF NOT EXISTS idx_entries_date
		ON journal_entries(entry_date, id);
	CREATE INDEX IF NOT EXISTS idx_entries_reference
		ON journal_entries(reference_type, reference_id);
	CREATE INDEX IF NOT EXISTS idx_entries_type
		ON journal_entries(transaction_type);

	CREATE TABLE IF NOT EXISTS journal_entry_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id INTEGER NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		debit_amount TEXT NOT NULL,
		credit_amount TEXT NOT NULL,
		description TEXT,
		line_number INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lines_entry ON journal_entry_lines(entry_id);
	CREATE INDEX IF NOT EXISTS idx_lines_account ON journal_entry_lines(account_id);

	-- Entry numbering counters
	CREATE TABLE IF NOT EXISTS entry_sequences (
		prefix TEXT NOT NULL,
		year INTEGER NOT NULL,
		value INTEGER NOT NULL,
		PRIMARY KEY (prefix, year)
	);

	-- Counterparty mirror (supplier/customer master lives elsewhere)
	CREATE TABLE IF NOT EXISTS counterparties (
		kind TEXT NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		ledger_balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);

	-- Subsidiary ledger rows (append-only)
	CREATE TABLE IF NOT EXISTS subsidiary_ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		journal_entry_id INTEGER NOT NULL REFERENCES journal_entries(id),
		entry_date TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		reference TEXT,
		description TEXT,
		debit_amount TEXT NOT NULL,
		credit_amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (kind, entity_id) REFERENCES counterparties(kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_subledger_entity_date
		ON subsidiary_ledger(kind, entity_id, entry_date, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// write runs a multi-statement write outside WithTx in its own transaction.
func (s *Store) write(ctx context.Context, fn func(*conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) read() (*conn, func()) {
	s.mu.RLock()
	return &conn{q: s.db}, s.mu.RUnlock
}

// =============================================================================
// ledger.AccountStore
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, a *ledger.Account) error {
	return s.write(ctx, func(c *conn) error { return c.CreateAccount(ctx, a) })
}

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	c, done := s.read()
	defer done()
	return c.GetAccount(ctx, id)
}

func (s *Store) GetAccountByCode(ctx context.Context, code string) (*ledger.Account, error) {
	c, done := s.read()
	defer done()
	return c.GetAccountByCode(ctx, code)
}

func (s *Store) ListAccounts(ctx context.Context, filter ledger.AccountFilter) ([]ledger.Account, error) {
	c, done := s.read()
	defer done()
	return c.ListAccounts(ctx, filter)
}

func (s *Store) SetAccountActive(ctx context.Context, id ledger.AccountID, active bool) error {
	return s.write(ctx, func(c *conn) error { return c.SetAccountActive(ctx, id, active) })
}

func (s *Store) AddToCachedBalance(ctx context.Context, id ledger.AccountID, delta decimal.Decimal) error {
	return s.write(ctx, func(c *conn) error { return c.AddToCachedBalance(ctx, id, delta) })
}

func (s *Store) SetCachedBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	return s.write(ctx, func(c *conn) error { return c.SetCachedBalance(ctx, id, balance) })
}

// =============================================================================
// ledger.EntryStore
// =============================================================================

func (s *Store) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	var seq int64
	err := s.write(ctx, func(c *conn) error {
		var err error
		seq, err = c.NextSequence(ctx, prefix, year)
		return err
	})
	return seq, err
}

func (s *Store) InsertEntry(ctx context.Context, e *ledger.JournalEntry) error {
	return s.write(ctx, func(c *conn) error { return c.InsertEntry(ctx, e) })
}

func (s *Store) GetEntry(ctx context.Context, id ledger.EntryID) (*ledger.JournalEntry, error) {
	c, done := s.read()
	defer done()
	return c.GetEntry(ctx, id)
}

func (s *Store) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	c, done := s.read()
	defer done()
	return c.ListEntries(ctx, filter)
}

func (s *Store) AccountTotals(ctx context.Context, id ledger.AccountID, asOf ledger.Date) (decimal.Decimal, decimal.Decimal, error) {
	c, done := s.read()
	defer done()
	return c.AccountTotals(ctx, id, asOf)
}

func (s *Store) PeriodTotals(ctx context.Context, id ledger.AccountID, from, to ledger.Date) (decimal.Decimal, decimal.Decimal, error) {
	c, done := s.read()
	defer done()
	return c.PeriodTotals(ctx, id, from, to)
}

func (s *Store) AccountLines(ctx context.Context, id ledger.AccountID, from, to ledger.Date) ([]ledger.PostedLine, error) {
	c, done := s.read()
	defer done()
	return c.AccountLines(ctx, id, from, to)
}

func (s *Store) AllPostedTotals(ctx context.Context) (map[ledger.AccountID][2]decimal.Decimal, error) {
	c, done := s.read()
	defer done()
	return c.AllPostedTotals(ctx)
}

// =============================================================================
// ledger.SubLedgerStore
// =============================================================================

func (s *Store) CreateCounterparty(ctx context.Context, cp *ledger.Counterparty) error {
	return s.write(ctx, func(c *conn) error { return c.CreateCounterparty(ctx, cp) })
}

func (s *Store) GetCounterparty(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID) (*ledger.Counterparty, error) {
	c, done := s.read()
	defer done()
	return c.GetCounterparty(ctx, kind, id)
}

func (s *Store) ListCounterparties(ctx context.Context, kind ledger.EntityKind) ([]ledger.Counterparty, error) {
	c, done := s.read()
	defer done()
	return c.ListCounterparties(ctx, kind)
}

func (s *Store) SetLedgerBalance(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID, balance decimal.Decimal) error {
	return s.write(ctx, func(c *conn) error { return c.SetLedgerBalance(ctx, kind, id, balance) })
}

func (s *Store) LastRow(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID) (*ledger.LedgerRow, error) {
	c, done := s.read()
	defer done()
	return c.LastRow(ctx, kind, id)
}

func (s *Store) LastRowAsOf(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID, asOf ledger.Date) (*ledger.LedgerRow, error) {
	c, done := s.read()
	defer done()
	return c.LastRowAsOf(ctx, kind, id, asOf)
}

func (s *Store) InsertRow(ctx context.Context, row *ledger.LedgerRow) error {
	return s.write(ctx, func(c *conn) error { return c.InsertRow(ctx, row) })
}

func (s *Store) Rows(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID, filter ledger.RowFilter) ([]ledger.LedgerRow, error) {
	c, done := s.read()
	defer done()
	return c.Rows(ctx, kind, id, filter)
}

func (s *Store) EntitiesWithRows(ctx context.Context, kind ledger.EntityKind) ([]ledger.EntityID, error) {
	c, done := s.read()
	defer done()
	return c.EntitiesWithRows(ctx, kind)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ledger.TxStore = (*Store)(nil)
