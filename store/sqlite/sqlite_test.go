package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) decimal.Decimal { return ledger.MustParseDecimal(s) }

func jan(d int) ledger.Date { return ledger.NewDate(2025, 1, d) }

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type books struct {
	store    *sqlite.Store
	registry *ledger.Registry
	journal  *ledger.Journal
	cash     ledger.AccountID
	payable  ledger.AccountID
	capital  ledger.AccountID
	sales    ledger.AccountID
}

func newBooks(t *testing.T) *books {
	t.Helper()
	s := openStore(t, filepath.Join(t.TempDir(), "books.db"))
	b := &books{store: s, registry: ledger.NewRegistry(s), journal: ledger.NewJournal(s)}

	ctx := context.Background()
	for _, a := range []struct {
		code string
		name string
		typ  ledger.AccountType
		id   *ledger.AccountID
	}{
		{"1000", "Cash", ledger.AccountAsset, &b.cash},
		{"2000", "Accounts Payable", ledger.AccountLiability, &b.payable},
		{"3000", "Owner's Capital", ledger.AccountEquity, &b.capital},
		{"4000", "Sales Revenue", ledger.AccountRevenue, &b.sales},
	} {
		acct, err := b.registry.CreateAccount(ctx, ledger.NewAccount{Code: a.code, Name: a.name, Type: a.typ})
		require.NoError(t, err)
		*a.id = acct.ID
	}
	return b
}

func (b *books) post(t *testing.T, date ledger.Date, tx ledger.TransactionType, lines ...ledger.LineDraft) *ledger.JournalEntry {
	t.Helper()
	e, err := b.journal.CreateEntry(context.Background(), ledger.EntryDraft{
		Date: date, TransactionType: tx, Description: string(tx), Lines: lines,
	})
	require.NoError(t, err)
	return e
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAccounts_CreateLookupDeactivate(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()

	t.Run("duplicate code is rejected", func(t *testing.T) {
		_, err := b.registry.CreateAccount(ctx, ledger.NewAccount{Code: "1000", Name: "Again", Type: ledger.AccountAsset})
		require.Error(t, err)
		assert.ErrorIs(t, err, ledger.ErrDuplicateAccountCode)
	})

	t.Run("lookup by code", func(t *testing.T) {
		a, err := b.store.GetAccountByCode(ctx, "2000")
		require.NoError(t, err)
		assert.Equal(t, b.payable, a.ID)
		assert.Equal(t, ledger.AccountLiability, a.Type)
		assert.True(t, a.IsActive)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := b.store.GetAccount(ctx, ledger.AccountID(999))
		require.Error(t, err)
		assert.True(t, ledger.IsNotFound(err))
	})

	t.Run("inactive accounts drop out of the active list", func(t *testing.T) {
		require.NoError(t, b.registry.Deactivate(ctx, b.sales))

		active, err := b.store.ListAccounts(ctx, ledger.AccountFilter{ActiveOnly: true})
		require.NoError(t, err)
		all, err := b.store.ListAccounts(ctx, ledger.AccountFilter{})
		require.NoError(t, err)
		assert.Len(t, active, 3)
		assert.Len(t, all, 4)
		assert.Equal(t, "1000", all[0].Code)
	})
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestEntries_NumberingAndRoundTrip(t *testing.T) {
	// GIVEN: Capital and two sales
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan(1), ledger.TxOpening, ledger.Debit(b.cash, money("1000"), "opening"), ledger.Credit(b.capital, money("1000"), "opening"))
	first := b.post(t, jan(5), ledger.TxSale, ledger.Debit(b.cash, money("250.50"), ""), ledger.Credit(b.sales, money("250.50"), ""))
	second := b.post(t, jan(6), ledger.TxSale, ledger.Debit(b.cash, money("0.10"), ""), ledger.Credit(b.sales, money("0.10"), ""))

	// THEN: Sale numbers run per prefix and year
	assert.Equal(t, "JE-SALE-2025-00001", first.Number)
	assert.Equal(t, "JE-SALE-2025-00002", second.Number)

	// AND: An entry reads back exactly as written
	got, err := b.store.GetEntry(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Number, got.Number)
	assert.True(t, got.Date.Equal(jan(5)))
	assert.True(t, got.IsPosted)
	assert.True(t, got.TotalDebit.Equal(money("250.50")))
	require.Len(t, got.Lines, 2)
	assert.Equal(t, b.cash, got.Lines[0].AccountID)
	assert.Equal(t, 1, got.Lines[0].LineNumber)
	assert.True(t, got.Lines[1].Credit.Equal(money("250.50")))

	// AND: Filters and totals agree with what was posted
	sales, err := b.store.ListEntries(ctx, ledger.EntryFilter{TransactionType: ledger.TxSale})
	require.NoError(t, err)
	assert.Len(t, sales, 2)

	from, to := jan(6), jan(31)
	ranged, err := b.store.ListEntries(ctx, ledger.EntryFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, second.ID, ranged[0].ID)

	dr, cr, err := b.store.AccountTotals(ctx, b.cash, jan(5))
	require.NoError(t, err)
	assert.True(t, dr.Equal(money("1250.50")), dr.String())
	assert.True(t, cr.IsZero())

	lines, err := b.store.AccountLines(ctx, b.sales, jan(1), jan(31))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, first.Number, lines[0].EntryNumber)

	calc := ledger.NewBalanceCalculator(b.store)
	cached, err := calc.CachedBalance(ctx, b.cash)
	require.NoError(t, err)
	assert.True(t, cached.Equal(money("1250.60")), cached.String())
}

func TestEntries_Reverse(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	orig := b.post(t, jan(5), ledger.TxSale, ledger.Debit(b.cash, money("80"), ""), ledger.Credit(b.sales, money("80"), ""))

	rev, err := b.journal.Reverse(ctx, orig.ID, jan(6), "", "tester")
	require.NoError(t, err)
	assert.Equal(t, ledger.RefReversal, rev.ReferenceType)
	assert.Equal(t, "Reversal of "+orig.Number, rev.Description)

	_, err = b.journal.Reverse(ctx, orig.ID, jan(7), "", "tester")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	bal, err := ledger.NewBalanceCalculator(b.store).BalanceAsOf(ctx, b.cash, jan(31))
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), bal.String())
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackEverything(t *testing.T) {
	// GIVEN: A unit of work that writes an account and burns a number, then fails
	b := newBooks(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := b.store.WithTx(ctx, func(s ledger.Store) error {
		if err := s.CreateAccount(ctx, &ledger.Account{
			Code: "5500", Name: "Misc", Type: ledger.AccountExpense, IsActive: true,
			OpeningBalance: decimal.Zero, CurrentBalance: decimal.Zero,
		}); err != nil {
			return err
		}
		if _, err := s.NextSequence(ctx, "JE-SALE", 2025); err != nil {
			return err
		}
		return boom
	})

	// THEN: The error comes back and nothing it wrote survives
	require.ErrorIs(t, err, boom)
	_, err = b.store.GetAccountByCode(ctx, "5500")
	assert.True(t, ledger.IsNotFound(err))

	e := b.post(t, jan(5), ledger.TxSale, ledger.Debit(b.cash, money("1"), ""), ledger.Credit(b.sales, money("1"), ""))
	assert.Equal(t, "JE-SALE-2025-00001", e.Number)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.db")
	ctx := context.Background()

	first, err := sqlite.New(path)
	require.NoError(t, err)
	reg := ledger.NewRegistry(first)
	cash, err := reg.CreateAccount(ctx, ledger.NewAccount{Code: "1000", Name: "Cash", Type: ledger.AccountAsset, OpeningBalance: money("42.42")})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openStore(t, path)
	got, err := second.GetAccount(ctx, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cash", got.Name)
	assert.True(t, got.OpeningBalance.Equal(money("42.42")))
}

func TestStore_CorruptAmountsFailReads(t *testing.T) {
	tests := []struct {
		name   string
		damage string
		read   func(ctx context.Context, s *sqlite.Store, cash ledger.AccountID, entry ledger.EntryID) error
	}{
		{
			name:   "account opening balance",
			damage: `UPDATE accounts SET opening_balance = 'abc' WHERE code = '1000'`,
			read: func(ctx context.Context, s *sqlite.Store, cash ledger.AccountID, _ ledger.EntryID) error {
				_, err := s.GetAccount(ctx, cash)
				return err
			},
		},
		{
			name:   "entry total",
			damage: `UPDATE journal_entries SET total_debit = '1O0'`,
			read: func(ctx context.Context, s *sqlite.Store, _ ledger.AccountID, entry ledger.EntryID) error {
				_, err := s.GetEntry(ctx, entry)
				return err
			},
		},
		{
			name:   "line amount",
			damage: `UPDATE journal_entry_lines SET debit_amount = '' WHERE debit_amount <> '0'`,
			read: func(ctx context.Context, s *sqlite.Store, cash ledger.AccountID, _ ledger.EntryID) error {
				_, _, err := s.AccountTotals(ctx, cash, jan(31))
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: Books with one posted entry whose stored amount is then damaged
			path := filepath.Join(t.TempDir(), "books.db")
			ctx := context.Background()
			first, err := sqlite.New(path)
			require.NoError(t, err)
			reg := ledger.NewRegistry(first)
			cash, err := reg.CreateAccount(ctx, ledger.NewAccount{Code: "1000", Name: "Cash", Type: ledger.AccountAsset})
			require.NoError(t, err)
			capital, err := reg.CreateAccount(ctx, ledger.NewAccount{Code: "3000", Name: "Owner's Capital", Type: ledger.AccountEquity})
			require.NoError(t, err)
			entry, err := ledger.NewJournal(first).CreateEntry(ctx, ledger.EntryDraft{
				Date: jan(5), TransactionType: ledger.TxOpening, Description: "capital",
				Lines: []ledger.LineDraft{
					ledger.Debit(cash.ID, money("100"), ""),
					ledger.Credit(capital.ID, money("100"), ""),
				},
			})
			require.NoError(t, err)
			require.NoError(t, first.Close())

			raw, err := sql.Open("sqlite3", path)
			require.NoError(t, err)
			_, err = raw.Exec(tt.damage)
			require.NoError(t, err)
			require.NoError(t, raw.Close())

			// WHEN: The damaged value is read back
			err = tt.read(ctx, openStore(t, path), cash.ID, entry.ID)

			// THEN: The read fails instead of yielding zero
			require.Error(t, err)
			assert.Contains(t, err.Error(), "corrupt amount")
		})
	}
}

// =============================================================================
// SUBSIDIARY LEDGER
// =============================================================================

func TestSubLedger_RowsAndLastRowAsOf(t *testing.T) {
	// GIVEN: A supplier with a purchase on Jan 5 and a payment on Jan 20
	b := newBooks(t)
	ctx := context.Background()
	require.NoError(t, b.store.CreateCounterparty(ctx, &ledger.Counterparty{
		Kind: ledger.KindSupplier, ID: 7, Name: "MedSupply", LedgerBalance: decimal.Zero,
	}))
	err := b.store.CreateCounterparty(ctx, &ledger.Counterparty{
		Kind: ledger.KindSupplier, ID: 7, Name: "Dup", LedgerBalance: decimal.Zero,
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateCounterparty)

	record := func(date ledger.Date, debit, credit string, lines ...ledger.LineDraft) {
		t.Helper()
		err := b.journal.WithTransaction(ctx, func(s ledger.Store) error {
			e, err := b.journal.Post(ctx, s, ledger.EntryDraft{Date: date, TransactionType: ledger.TxPurchase, Lines: lines})
			if err != nil {
				return err
			}
			_, err = ledger.AppendRow(ctx, s, ledger.RowDraft{
				Kind: ledger.KindSupplier, EntityID: 7, EntryID: e.ID, Date: date,
				Type: ledger.TxPurchase, Debit: money(debit), Credit: money(credit),
			})
			return err
		})
		require.NoError(t, err)
	}
	record(jan(5), "0", "1000", ledger.Debit(b.cash, money("1000"), ""), ledger.Credit(b.payable, money("1000"), ""))
	record(jan(20), "400", "0", ledger.Debit(b.payable, money("400"), ""), ledger.Credit(b.cash, money("400"), ""))

	// THEN: Running balances, the as-of lookup and the cache line up
	tests := []struct {
		name string
		asOf ledger.Date
		want string // empty means no row yet
	}{
		{"before any row", jan(4), ""},
		{"after the purchase", jan(10), "1000"},
		{"after the payment", jan(31), "600"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := b.store.LastRowAsOf(ctx, ledger.KindSupplier, 7, tt.asOf)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, row)
				return
			}
			require.NotNil(t, row)
			assert.True(t, row.Balance.Equal(money(tt.want)), row.Balance.String())
		})
	}

	from := jan(10)
	rows, err := b.store.Rows(ctx, ledger.KindSupplier, 7, ledger.RowFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Debit.Equal(money("400")))

	cp, err := b.store.GetCounterparty(ctx, ledger.KindSupplier, 7)
	require.NoError(t, err)
	assert.True(t, cp.LedgerBalance.Equal(money("600")), cp.LedgerBalance.String())

	ids, err := b.store.EntitiesWithRows(ctx, ledger.KindSupplier)
	require.NoError(t, err)
	assert.Equal(t, []ledger.EntityID{7}, ids)

	none, err := b.store.EntitiesWithRows(ctx, ledger.KindCustomer)
	require.NoError(t, err)
	assert.Empty(t, none)
}
