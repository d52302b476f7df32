package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

// appendRow writes a balanced backing entry and the ledger row for it in one
// unit of work, the way the composers do.
func (b *books) appendRow(t *testing.T, kind ledger.EntityKind, id ledger.EntityID, date ledger.Date, debit, credit string) (*ledger.LedgerRow, error) {
	t.Helper()
	ctx := context.Background()
	var row *ledger.LedgerRow
	err := b.journal.WithTransaction(ctx, func(s ledger.Store) error {
		e, err := b.journal.Post(ctx, s, ledger.EntryDraft{
			Date: date, TransactionType: ledger.TxPurchase,
			Lines: []ledger.LineDraft{ledger.Debit(b.rent, money("1"), ""), ledger.Credit(b.payable, money("1"), "")},
		})
		if err != nil {
			return err
		}
		row, err = ledger.AppendRow(ctx, s, ledger.RowDraft{
			Kind: kind, EntityID: id, EntryID: e.ID, Date: date, Type: ledger.TxPurchase,
			Debit: money(debit), Credit: money(credit),
		})
		return err
	})
	return row, err
}

func (b *books) register(t *testing.T, kind ledger.EntityKind, id ledger.EntityID, name string) {
	t.Helper()
	require.NoError(t, b.store.CreateCounterparty(context.Background(), &ledger.Counterparty{Kind: kind, ID: id, Name: name}))
}

// =============================================================================
// RUNNING BALANCE
// =============================================================================

func TestAppendRow_RunningBalancePerKind(t *testing.T) {
	// GIVEN: A supplier and a customer
	b := newBooks(t)
	ctx := context.Background()
	b.register(t, ledger.KindSupplier, 1, "MedSupply")
	b.register(t, ledger.KindCustomer, 1, "City Clinic")

	// WHEN: Each gets an invoice and a partial settlement
	for _, step := range []struct {
		kind          ledger.EntityKind
		date          ledger.Date
		debit, credit string
		want          string
	}{
		{ledger.KindSupplier, jan(2), "0", "1000", "1000"},
		{ledger.KindSupplier, jan(9), "400", "0", "600"},
		{ledger.KindCustomer, jan(3), "250", "0", "250"},
		{ledger.KindCustomer, jan(9), "0", "100", "150"},
	} {
		row, err := b.appendRow(t, step.kind, 1, step.date, step.debit, step.credit)
		require.NoError(t, err)
		// THEN: Suppliers grow on credit, customers on debit
		assert.True(t, row.Balance.Equal(money(step.want)), "%s %s: got %s", step.kind, step.date, row.Balance)
	}

	// AND: The counterparty cache follows the last row
	sup, err := b.store.GetCounterparty(ctx, ledger.KindSupplier, 1)
	require.NoError(t, err)
	assert.True(t, sup.LedgerBalance.Equal(money("600")))
	cus, err := b.store.GetCounterparty(ctx, ledger.KindCustomer, 1)
	require.NoError(t, err)
	assert.True(t, cus.LedgerBalance.Equal(money("150")))
}

func TestAppendRow_Rejections(t *testing.T) {
	b := newBooks(t)
	b.register(t, ledger.KindSupplier, 1, "MedSupply")
	_, err := b.appendRow(t, ledger.KindSupplier, 1, jan(20), "0", "100")
	require.NoError(t, err)

	tests := []struct {
		name          string
		kind          ledger.EntityKind
		id            ledger.EntityID
		date          ledger.Date
		debit, credit string
		code          string
		notFound      bool
	}{
		{name: "backdated", kind: ledger.KindSupplier, id: 1, date: jan(10), debit: "0", credit: "50", code: ledger.CodeBackdatedRow},
		{name: "both sides", kind: ledger.KindSupplier, id: 1, date: jan(21), debit: "5", credit: "5", code: ledger.CodeBadLineShape},
		{name: "negative", kind: ledger.KindSupplier, id: 1, date: jan(21), debit: "-5", credit: "0", code: ledger.CodeNegativeAmount},
		{name: "unknown kind", kind: "employee", id: 1, date: jan(21), debit: "5", credit: "0", code: ledger.CodeBadType},
		{name: "unregistered counterparty", kind: ledger.KindSupplier, id: 2, date: jan(21), debit: "0", credit: "5", notFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.appendRow(t, tt.kind, tt.id, tt.date, tt.debit, tt.credit)

			require.Error(t, err)
			if tt.notFound {
				assert.True(t, ledger.IsNotFound(err))
				return
			}
			assert.Equal(t, tt.code, validationCode(err))
		})
	}

	// The rejected rows took their backing entries down with them
	entries, err := b.journal.ListEntries(context.Background(), ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAppendRow_SameDayIsNotBackdated(t *testing.T) {
	b := newBooks(t)
	b.register(t, ledger.KindCustomer, 4, "Walk-in")
	_, err := b.appendRow(t, ledger.KindCustomer, 4, jan(5), "10", "0")
	require.NoError(t, err)

	row, err := b.appendRow(t, ledger.KindCustomer, 4, jan(5), "15", "0")

	require.NoError(t, err)
	assert.True(t, row.Balance.Equal(money("25")))
}

// =============================================================================
// STATEMENTS
// =============================================================================

func TestBuildStatement_CarriesOpeningBalance(t *testing.T) {
	// GIVEN: Rows before and inside the statement range
	b := newBooks(t)
	b.register(t, ledger.KindSupplier, 1, "MedSupply")
	for _, r := range []struct {
		day           int
		debit, credit string
	}{
		{2, "0", "500"}, {8, "200", "0"}, {15, "0", "300"}, {28, "100", "0"},
	} {
		_, err := b.appendRow(t, ledger.KindSupplier, 1, jan(r.day), r.debit, r.credit)
		require.NoError(t, err)
	}

	// WHEN: A statement for the 10th to the 31st is built
	st, err := ledger.BuildStatement(context.Background(), b.store, ledger.KindSupplier, 1, jan(10), jan(31))

	// THEN: The opening is the balance on the 9th and running balances follow
	require.NoError(t, err)
	assert.Equal(t, "MedSupply", st.Name)
	assert.True(t, st.OpeningBalance.Equal(money("300")), st.OpeningBalance.String())
	require.Len(t, st.Rows, 2)
	assert.True(t, st.Rows[0].Balance.Equal(money("600")))
	assert.True(t, st.Rows[1].Balance.Equal(money("500")))
	assert.True(t, st.ClosingBalance.Equal(money("500")))
}

func TestRebuildEntityCaches_CorrectsDrift(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.register(t, ledger.KindCustomer, 9, "Dr. Rahman")
	_, err := b.appendRow(t, ledger.KindCustomer, 9, jan(4), "80", "0")
	require.NoError(t, err)
	require.NoError(t, b.store.SetLedgerBalance(ctx, ledger.KindCustomer, 9, money("1")))

	drifts, err := ledger.RebuildEntityCaches(ctx, b.store)

	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, "customer", drifts[0].Kind)
	assert.True(t, drifts[0].Replayed.Equal(money("80")))
	cp, err := b.store.GetCounterparty(ctx, ledger.KindCustomer, 9)
	require.NoError(t, err)
	assert.True(t, cp.LedgerBalance.Equal(money("80")))
}

// =============================================================================
// AGING
// =============================================================================

func TestAgeRows_NewestFirst(t *testing.T) {
	// GIVEN: Supplier invoices aged 200, 45 and 10 days, none paid
	asOf := ledger.NewDate(2024, 7, 20)
	rows := []ledger.LedgerRow{
		{ID: 1, Date: asOf.AddDays(-200), Credit: money("50"), Debit: decimal.Zero},
		{ID: 2, Date: asOf.AddDays(-45), Credit: money("200"), Debit: decimal.Zero},
		{ID: 3, Date: asOf.AddDays(-10), Credit: money("100"), Debit: decimal.Zero},
	}

	// WHEN: The 350 balance is aged
	got := ledger.AgeRows(ledger.KindSupplier, rows, money("350"), asOf)

	// THEN: Each invoice lands in its own band and the bands sum to the total
	assert.True(t, got.Current.Equal(money("100")), got.Current.String())
	assert.True(t, got.Days30.Equal(money("200")), got.Days30.String())
	assert.True(t, got.Days60.IsZero())
	assert.True(t, got.Days90.IsZero())
	assert.True(t, got.Over90.Equal(money("50")), got.Over90.String())
	assert.True(t, got.Sum().Equal(got.Total))
}

func TestAgeRows_Bands(t *testing.T) {
	asOf := ledger.NewDate(2025, 6, 30)
	tests := []struct {
		days int
		band func(ledger.AgingBuckets) decimal.Decimal
	}{
		{0, func(b ledger.AgingBuckets) decimal.Decimal { return b.Current }},
		{30, func(b ledger.AgingBuckets) decimal.Decimal { return b.Current }},
		{31, func(b ledger.AgingBuckets) decimal.Decimal { return b.Days30 }},
		{60, func(b ledger.AgingBuckets) decimal.Decimal { return b.Days30 }},
		{61, func(b ledger.AgingBuckets) decimal.Decimal { return b.Days60 }},
		{90, func(b ledger.AgingBuckets) decimal.Decimal { return b.Days60 }},
		{91, func(b ledger.AgingBuckets) decimal.Decimal { return b.Days90 }},
		{120, func(b ledger.AgingBuckets) decimal.Decimal { return b.Days90 }},
		{121, func(b ledger.AgingBuckets) decimal.Decimal { return b.Over90 }},
	}
	for _, tt := range tests {
		rows := []ledger.LedgerRow{{ID: 1, Date: asOf.AddDays(-tt.days), Debit: money("10"), Credit: decimal.Zero}}

		got := ledger.AgeRows(ledger.KindCustomer, rows, money("10"), asOf)

		assert.True(t, tt.band(got).Equal(money("10")), "%d days", tt.days)
	}
}

func TestAgeRows_EdgeCases(t *testing.T) {
	asOf := ledger.NewDate(2025, 6, 30)
	invoice := []ledger.LedgerRow{{ID: 1, Date: asOf.AddDays(-5), Credit: money("100"), Debit: decimal.Zero}}

	t.Run("balance larger than invoices goes to Over90", func(t *testing.T) {
		got := ledger.AgeRows(ledger.KindSupplier, invoice, money("130"), asOf)
		assert.True(t, got.Current.Equal(money("100")))
		assert.True(t, got.Over90.Equal(money("30")))
		assert.True(t, got.Sum().Equal(money("130")))
	})

	t.Run("partial payment caps the newest invoice", func(t *testing.T) {
		got := ledger.AgeRows(ledger.KindSupplier, invoice, money("40"), asOf)
		assert.True(t, got.Current.Equal(money("40")))
		assert.True(t, got.Over90.IsZero())
	})

	t.Run("advance balance is not bucketed", func(t *testing.T) {
		got := ledger.AgeRows(ledger.KindSupplier, invoice, money("-20"), asOf)
		assert.True(t, got.Sum().IsZero())
		assert.True(t, got.Total.Equal(money("-20")))
	})

	t.Run("future rows are ignored", func(t *testing.T) {
		future := append(invoice, ledger.LedgerRow{ID: 2, Date: asOf.AddDays(3), Credit: money("500"), Debit: decimal.Zero})
		got := ledger.AgeRows(ledger.KindSupplier, future, money("100"), asOf)
		assert.True(t, got.Current.Equal(money("100")))
	})
}

func TestAgeBalance_FromStore(t *testing.T) {
	// GIVEN: Two purchases and a payment
	b := newBooks(t)
	b.register(t, ledger.KindSupplier, 1, "MedSupply")
	steps := []struct {
		date          ledger.Date
		debit, credit string
	}{
		{ledger.NewDate(2025, 1, 10), "0", "500"},
		{ledger.NewDate(2025, 3, 1), "0", "300"},
		{ledger.NewDate(2025, 3, 5), "350", "0"},
	}
	for _, s := range steps {
		_, err := b.appendRow(t, ledger.KindSupplier, 1, s.date, s.debit, s.credit)
		require.NoError(t, err)
	}
	allocator := ledger.NewAgingAllocator(b.store)

	// WHEN: The balance is aged at the end of March
	got, outstanding, err := allocator.AgeBalance(context.Background(), ledger.KindSupplier, 1, ledger.NewDate(2025, 3, 31))

	// THEN: 450 owed: 300 from March, 150 left of the January invoice
	require.NoError(t, err)
	assert.True(t, outstanding)
	assert.True(t, got.Total.Equal(money("450")))
	assert.True(t, got.Current.Equal(money("300")))
	assert.True(t, got.Days60.Equal(money("150")), got.Days60.String())

	// AND: Before any row there is nothing outstanding
	_, outstanding, err = allocator.AgeBalance(context.Background(), ledger.KindSupplier, 1, ledger.NewDate(2024, 12, 31))
	require.NoError(t, err)
	assert.False(t, outstanding)
}
