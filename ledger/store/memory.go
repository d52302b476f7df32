// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

type seqKey struct {
	Prefix string
	Year   int
}

type entityKey struct {
	Kind ledger.EntityKind
	ID   ledger.EntityID
}

// state holds the data; its methods assume the caller holds the lock.
type state struct {
	accounts       map[ledger.AccountID]ledger.Account
	codes          map[string]ledger.AccountID
	entries        []ledger.JournalEntry // in id order
	numbers        map[string]bool
	sequences      map[seqKey]int64
	counterparties map[entityKey]ledger.Counterparty
	rows           map[entityKey][]ledger.LedgerRow // in (date, id) order

	nextAccount ledger.AccountID
	nextEntry   ledger.EntryID
	nextLine    int64
	nextRow     int64
}

func newState() *state {
	return &state{
		accounts:       make(map[ledger.AccountID]ledger.Account),
		codes:          make(map[string]ledger.AccountID),
		numbers:        make(map[string]bool),
		sequences:      make(map[seqKey]int64),
		counterparties: make(map[entityKey]ledger.Counterparty),
		rows:           make(map[entityKey][]ledger.LedgerRow),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *state) CreateAccount(_ context.Context, a *ledger.Account) error {
	if _, ok := s.codes[a.Code]; ok {
		return ledger.ErrDuplicateAccountCode
	}
	s.nextAccount++
	a.ID = s.nextAccount
	s.accounts[a.ID] = *a
	s.codes[a.Code] = a.ID
	return nil
}

func (s *state) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, ledger.NotFound("account", id)
	}
	return &a, nil
}

func (s *state) GetAccountByCode(_ context.Context, code string) (*ledger.Account, error) {
	id, ok := s.codes[code]
	if !ok {
		return nil, ledger.NotFound("account", code)
	}
	a := s.accounts[id]
	return &a, nil
}

func (s *state) ListAccounts(_ context.Context, filter ledger.AccountFilter) ([]ledger.Account, error) {
	var result []ledger.Account
	for _, a := range s.accounts {
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.ActiveOnly && !a.IsActive {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (s *state) SetAccountActive(_ context.Context, id ledger.AccountID, active bool) error {
	a, ok := s.accounts[id]
	if !ok {
		return ledger.NotFound("account", id)
	}
	a.IsActive = active
	s.accounts[id] = a
	return nil
}

func (s *state) AddToCachedBalance(_ context.Context, id ledger.AccountID, delta decimal.Decimal) error {
	a, ok := s.accounts[id]
	if !ok {
		return ledger.NotFound("account", id)
	}
	a.CurrentBalance = a.CurrentBalance.Add(delta)
	s.accounts[id] = a
	return nil
}

func (s *state) SetCachedBalance(_ context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	a, ok := s.accounts[id]
	if !ok {
		return ledger.NotFound("account", id)
	}
	a.CurrentBalance = balance
	s.accounts[id] = a
	return nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (s *state) NextSequence(_ context.Context, prefix string, year int) (int64, error) {
	k := seqKey{Prefix: prefix, Year: year}
	s.sequences[k]++
	return s.sequences[k], nil
}

func (s *state) InsertEntry(_ context.Context, e *ledger.JournalEntry) error {
	if s.numbers[e.Number] {
		return &ledger.IntegrityError{Key: e.Number}
	}
	s.nextEntry++
	e.ID = s.nextEntry
	for i := range e.Lines {
		s.nextLine++
		e.Lines[i].ID = s.nextLine
		e.Lines[i].EntryID = e.ID
	}
	stored := *e
	stored.Lines = append([]ledger.Line(nil), e.Lines...)
	s.entries = append(s.entries, stored)
	s.numbers[e.Number] = true
	return nil
}

func (s *state) GetEntry(_ context.Context, id ledger.EntryID) (*ledger.JournalEntry, error) {
	// ids are dense and entries are never removed
	if id < 1 || int(id) > len(s.entries) {
		return nil, ledger.NotFound("entry", id)
	}
	e := copyEntry(s.entries[id-1])
	return &e, nil
}

func (s *state) ListEntries(_ context.Context, filter ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	var result []ledger.JournalEntry
	for _, e := range s.entries {
		if !entryMatches(e, filter) {
			continue
		}
		result = append(result, copyEntry(e))
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func entryMatches(e ledger.JournalEntry, f ledger.EntryFilter) bool {
	switch {
	case f.From != nil && e.Date.Before(*f.From):
		return false
	case f.To != nil && e.Date.After(*f.To):
		return false
	case f.TransactionType != "" && e.TransactionType != f.TransactionType:
		return false
	case f.ReferenceType != "" && e.ReferenceType != f.ReferenceType:
		return false
	case f.ReferenceID != nil && e.ReferenceID != *f.ReferenceID:
		return false
	case f.PostedOnly && !e.IsPosted:
		return false
	}
	return true
}

func copyEntry(e ledger.JournalEntry) ledger.JournalEntry {
	e.Lines = append([]ledger.Line(nil), e.Lines...)
	return e
}

func (s *state) sumLines(id ledger.AccountID, include func(ledger.Date) bool) (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range s.entries {
		if !e.IsPosted || !include(e.Date) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == id {
				debit = debit.Add(l.Debit)
				credit = credit.Add(l.Credit)
			}
		}
	}
	return debit, credit
}

func (s *state) AccountTotals(_ context.Context, id ledger.AccountID, asOf ledger.Date) (decimal.Decimal, decimal.Decimal, error) {
	d, c := s.sumLines(id, func(date ledger.Date) bool { return date.BeforeOrEqual(asOf) })
	return d, c, nil
}

func (s *state) PeriodTotals(_ context.Context, id ledger.AccountID, from, to ledger.Date) (decimal.Decimal, decimal.Decimal, error) {
	d, c := s.sumLines(id, func(date ledger.Date) bool {
		return date.AfterOrEqual(from) && date.BeforeOrEqual(to)
	})
	return d, c, nil
}

func (s *state) AccountLines(ctx context.Context, id ledger.AccountID, from, to ledger.Date) ([]ledger.PostedLine, error) {
	entries, _ := s.ListEntries(ctx, ledger.EntryFilter{From: &from, To: &to, PostedOnly: true})
	var result []ledger.PostedLine
	for _, e := range entries {
		for _, l := range e.Lines {
			if l.AccountID != id {
				continue
			}
			result = append(result, ledger.PostedLine{
				Line:            l,
				EntryNumber:     e.Number,
				EntryDate:       e.Date,
				TransactionType: e.TransactionType,
				EntryDesc:       e.Description,
			})
		}
	}
	return result, nil
}

func (s *state) AllPostedTotals(_ context.Context) (map[ledger.AccountID][2]decimal.Decimal, error) {
	totals := make(map[ledger.AccountID][2]decimal.Decimal)
	for _, e := range s.entries {
		if !e.IsPosted {
			continue
		}
		for _, l := range e.Lines {
			t := totals[l.AccountID]
			totals[l.AccountID] = [2]decimal.Decimal{t[0].Add(l.Debit), t[1].Add(l.Credit)}
		}
	}
	return totals, nil
}

// =============================================================================
// SUBSIDIARY LEDGER
// =============================================================================

func (s *state) CreateCounterparty(_ context.Context, c *ledger.Counterparty) error {
	k := entityKey{Kind: c.Kind, ID: c.ID}
	if _, ok := s.counterparties[k]; ok {
		return ledger.ErrDuplicateCounterparty
	}
	s.counterparties[k] = *c
	return nil
}

func (s *state) GetCounterparty(_ context.Context, kind ledger.EntityKind, id ledger.EntityID) (*ledger.Counterparty, error) {
	c, ok := s.counterparties[entityKey{Kind: kind, ID: id}]
	if !ok {
		return nil, ledger.NotFound(string(kind), id)
	}
	return &c, nil
}

func (s *state) ListCounterparties(_ context.Context, kind ledger.EntityKind) ([]ledger.Counterparty, error) {
	var result []ledger.Counterparty
	for k, c := range s.counterparties {
		if k.Kind == kind {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *state) SetLedgerBalance(_ context.Context, kind ledger.EntityKind, id ledger.EntityID, balance decimal.Decimal) error {
	k := entityKey{Kind: kind, ID: id}
	c, ok := s.counterparties[k]
	if !ok {
		return ledger.NotFound(string(kind), id)
	}
	c.LedgerBalance = balance
	s.counterparties[k] = c
	return nil
}

func (s *state) LastRow(_ context.Context, kind ledger.EntityKind, id ledger.EntityID) (*ledger.LedgerRow, error) {
	rows := s.rows[entityKey{Kind: kind, ID: id}]
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[len(rows)-1]
	return &r, nil
}

func (s *state) LastRowAsOf(_ context.Context, kind ledger.EntityKind, id ledger.EntityID, asOf ledger.Date) (*ledger.LedgerRow, error) {
	rows := s.rows[entityKey{Kind: kind, ID: id}]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Date.After(asOf) })
	if i == 0 {
		return nil, nil
	}
	r := rows[i-1]
	return &r, nil
}

func (s *state) InsertRow(_ context.Context, row *ledger.LedgerRow) error {
	k := entityKey{Kind: row.Kind, ID: row.EntityID}
	s.nextRow++
	row.ID = s.nextRow

	rows := s.rows[k]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Date.After(row.Date) })
	rows = append(rows, ledger.LedgerRow{})
	copy(rows[i+1:], rows[i:])
	rows[i] = *row
	s.rows[k] = rows
	return nil
}

func (s *state) Rows(_ context.Context, kind ledger.EntityKind, id ledger.EntityID, filter ledger.RowFilter) ([]ledger.LedgerRow, error) {
	var result []ledger.LedgerRow
	for _, r := range s.rows[entityKey{Kind: kind, ID: id}] {
		if filter.From != nil && r.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && r.Date.After(*filter.To) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *state) EntitiesWithRows(_ context.Context, kind ledger.EntityKind) ([]ledger.EntityID, error) {
	var ids []ledger.EntityID
	for k, rows := range s.rows {
		if k.Kind == kind && len(rows) > 0 {
			ids = append(ids, k.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// =============================================================================
// LOCKED ACCESS
// =============================================================================

func (m *Memory) CreateAccount(ctx context.Context, a *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateAccount(ctx, a)
}

func (m *Memory) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetAccount(ctx, id)
}

func (m *Memory) GetAccountByCode(ctx context.Context, code string) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetAccountByCode(ctx, code)
}

func (m *Memory) ListAccounts(ctx context.Context, filter ledger.AccountFilter) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListAccounts(ctx, filter)
}

func (m *Memory) SetAccountActive(ctx context.Context, id ledger.AccountID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetAccountActive(ctx, id, active)
}

func (m *Memory) AddToCachedBalance(ctx context.Context, id ledger.AccountID, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AddToCachedBalance(ctx, id, delta)
}

func (m *Memory) SetCachedBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetCachedBalance(ctx, id, balance)
}

func (m *Memory) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.NextSequence(ctx, prefix, year)
}

func (m *Memory) InsertEntry(ctx context.Context, e *ledger.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertEntry(ctx, e)
}

func (m *Memory) GetEntry(ctx context.Context, id ledger.EntryID) (*ledger.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetEntry(ctx, id)
}

func (m *Memory) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListEntries(ctx, filter)
}

func (m *Memory) AccountTotals(ctx context.Context, id ledger.AccountID, asOf ledger.Date) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.AccountTotals(ctx, id, asOf)
}

func (m *Memory) PeriodTotals(ctx context.Context, id ledger.AccountID, from, to ledger.Date) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.PeriodTotals(ctx, id, from, to)
}

func (m *Memory) AccountLines(ctx context.Context, id ledger.AccountID, from, to ledger.Date) ([]ledger.PostedLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.AccountLines(ctx, id, from, to)
}

func (m *Memory) AllPostedTotals(ctx context.Context) (map[ledger.AccountID][2]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.AllPostedTotals(ctx)
}

func (m *Memory) CreateCounterparty(ctx context.Context, c *ledger.Counterparty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateCounterparty(ctx, c)
}

func (m *Memory) GetCounterparty(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID) (*ledger.Counterparty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetCounterparty(ctx, kind, id)
}

func (m *Memory) ListCounterparties(ctx context.Context, kind ledger.EntityKind) ([]ledger.Counterparty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListCounterparties(ctx, kind)
}

func (m *Memory) SetLedgerBalance(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetLedgerBalance(ctx, kind, id, balance)
}

func (m *Memory) LastRow(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID) (*ledger.LedgerRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LastRow(ctx, kind, id)
}

func (m *Memory) LastRowAsOf(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID, asOf ledger.Date) (*ledger.LedgerRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LastRowAsOf(ctx, kind, id, asOf)
}

func (m *Memory) InsertRow(ctx context.Context, row *ledger.LedgerRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertRow(ctx, row)
}

func (m *Memory) Rows(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID, filter ledger.RowFilter) ([]ledger.LedgerRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.Rows(ctx, kind, id, filter)
}

func (m *Memory) EntitiesWithRows(ctx context.Context, kind ledger.EntityKind) ([]ledger.EntityID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.EntitiesWithRows(ctx, kind)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on
// error; fn runs against the unlocked state while the write lock is held.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.st.snapshot()
	if err := fn(m.st); err != nil {
		m.st = snap
		return err
	}
	return nil
}

// snapshot copies everything a transaction can mutate. Stored entries are
// never modified in place, so sharing their line slices is safe.
func (s *state) snapshot() *state {
	c := *s
	c.accounts = make(map[ledger.AccountID]ledger.Account, len(s.accounts))
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.codes = make(map[string]ledger.AccountID, len(s.codes))
	for k, v := range s.codes {
		c.codes[k] = v
	}
	c.entries = append([]ledger.JournalEntry(nil), s.entries...)
	c.numbers = make(map[string]bool, len(s.numbers))
	for k, v := range s.numbers {
		c.numbers[k] = v
	}
	c.sequences = make(map[seqKey]int64, len(s.sequences))
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	c.counterparties = make(map[entityKey]ledger.Counterparty, len(s.counterparties))
	for k, v := range s.counterparties {
		c.counterparties[k] = v
	}
	c.rows = make(map[entityKey][]ledger.LedgerRow, len(s.rows))
	for k, v := range s.rows {
		c.rows[k] = append([]ledger.LedgerRow(nil), v...)
	}
	return &c
}

var (
	_ ledger.TxStore = (*Memory)(nil)
	_ ledger.Store   = (*state)(nil)
)
