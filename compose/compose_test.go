package compose_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/compose"
	"github.com/warp/ledger-engine/factory"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixture struct {
	store    *store.Memory
	journal  *ledger.Journal
	chart    *ledger.Chart
	costs    *compose.CostBook
	composer *compose.Composer
	poster   *compose.Poster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	charts := factory.NewChartFactory()
	def, err := charts.Default()
	require.NoError(t, err)
	_, err = charts.Seed(ctx, ledger.NewRegistry(mem), def)
	require.NoError(t, err)
	chart, err := ledger.ResolveChart(ctx, mem, def.RoleCodes())
	require.NoError(t, err)

	journal := ledger.NewJournal(mem)
	costs := compose.NewCostBook()
	f := &fixture{
		store:    mem,
		journal:  journal,
		chart:    chart,
		costs:    costs,
		composer: compose.NewComposer(chart, costs),
		poster:   compose.NewPoster(journal, zerolog.Nop()),
	}
	for _, cp := range []ledger.Counterparty{
		{Kind: ledger.KindSupplier, ID: 1, Name: "MedSupply"},
		{Kind: ledger.KindCustomer, ID: 1, Name: "City Clinic"},
	} {
		cp := cp
		require.NoError(t, mem.CreateCounterparty(ctx, &cp))
	}
	return f
}

func money(s string) decimal.Decimal { return ledger.MustParseDecimal(s) }

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

var march = ledger.NewDate(2025, 3, 10)

func (f *fixture) post(t *testing.T, p compose.Posting, err error) *compose.Result {
	t.Helper()
	require.NoError(t, err)
	res, err := f.poster.Post(context.Background(), p)
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(t *testing.T, role ledger.Role) decimal.Decimal {
	t.Helper()
	bal, err := ledger.NewBalanceCalculator(f.store).BalanceAsOf(context.Background(), f.chart.ID(role), ledger.NewDate(2025, 12, 31))
	require.NoError(t, err)
	return bal
}

func (f *fixture) assertBalances(t *testing.T, want map[ledger.Role]string) {
	t.Helper()
	for role, amount := range want {
		got := f.balance(t, role)
		assert.True(t, got.Equal(money(amount)), "%s: got %s want %s", role, got, amount)
	}
}

func (f *fixture) ledgerBalance(t *testing.T, kind ledger.EntityKind, id ledger.EntityID) decimal.Decimal {
	t.Helper()
	cp, err := f.store.GetCounterparty(context.Background(), kind, id)
	require.NoError(t, err)
	return cp.LedgerBalance
}

func validationCode(err error) string {
	var ve *ledger.ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// =============================================================================
// SALES
// =============================================================================

func TestSale_CashWithTaxAndCOGS(t *testing.T) {
	// GIVEN: A 110 cash invoice with 10 tax; 10 units costing 6 each
	f := newFixture(t)
	sale := compose.Sale{
		InvoiceID: 1, InvoiceNumber: "INV-0001", Date: march, Method: compose.MethodCash,
		NetTotal: money("110"), TaxAmount: money("10"),
		Items: []compose.SaleItem{{ProductID: 7, Quantity: money("10"), UnitCost: ptr(money("6"))}},
	}

	// WHEN: It is composed and posted
	p, err := f.composer.Sale(context.Background(), sale)
	res := f.post(t, p, err)

	// THEN: One entry carries revenue, tax and COGS
	require.Len(t, res.Entries, 1)
	e := res.Entries[0]
	assert.Equal(t, "JE-SALE-2025-00001", e.Number)
	assert.Equal(t, ledger.RefInvoice, e.ReferenceType)
	assert.True(t, e.TotalDebit.Equal(money("170")))
	assert.Empty(t, res.Rows)
	f.assertBalances(t, map[ledger.Role]string{
		ledger.RoleCash:         "110",
		ledger.RoleSalesRevenue: "100",
		ledger.RoleTaxPayable:   "10",
		ledger.RoleCOGS:         "60",
		ledger.RoleInventory:    "-60",
	})
}

func TestSale_PaymentMethods(t *testing.T) {
	tests := []struct {
		method compose.PaymentMethod
		role   ledger.Role
	}{
		{compose.MethodCash, ledger.RoleCash},
		{compose.MethodCard, ledger.RoleBank},
		{compose.MethodBank, ledger.RoleBank},
		{compose.MethodCredit, ledger.RoleReceivable},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			f := newFixture(t)
			p, err := f.composer.Sale(context.Background(), compose.Sale{
				InvoiceID: 2, InvoiceNumber: "INV-0002", Date: march, Method: tt.method, CustomerID: 1,
				NetTotal: money("50"),
			})
			f.post(t, p, err)

			assert.True(t, f.balance(t, tt.role).Equal(money("50")))
		})
	}
}

func TestSale_CreditMirrorsCustomerLedger(t *testing.T) {
	// GIVEN: A credit invoice of 2300 after a 100 discount
	f := newFixture(t)
	p, err := f.composer.Sale(context.Background(), compose.Sale{
		InvoiceID: 3, InvoiceNumber: "INV-0003", Date: march, Method: compose.MethodCredit, CustomerID: 1,
		NetTotal: money("2300"), TaxAmount: money("200"), Discount: money("100"),
	})

	// WHEN: It is posted
	res := f.post(t, p, err)

	// THEN: The customer row is a debit referencing the invoice, and the
	// receivable control account agrees with the subledger
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, ledger.KindCustomer, row.Kind)
	assert.Equal(t, "INV-0003", row.Reference)
	assert.True(t, row.Debit.Equal(money("2300")))
	assert.Equal(t, res.Entries[0].ID, row.EntryID)
	f.assertBalances(t, map[ledger.Role]string{
		ledger.RoleReceivable:   "2300",
		ledger.RoleDiscount:     "100",
		ledger.RoleSalesRevenue: "2200",
		ledger.RoleTaxPayable:   "200",
	})
	assert.True(t, f.ledgerBalance(t, ledger.KindCustomer, 1).Equal(money("2300")))
}

func TestSale_ExchangeNetsReturnAgainstSale(t *testing.T) {
	// GIVEN: Two units sold and one returned on the same invoice
	f := newFixture(t)
	f.costs.Receive(7, money("100"), money("30"))
	f.costs.Receive(8, money("100"), money("40"))
	p, err := f.composer.Sale(context.Background(), compose.Sale{
		InvoiceID: 4, InvoiceNumber: "INV-0004", Date: march, Method: compose.MethodCash,
		NetTotal: money("55"), TaxAmount: money("5"),
		Items: []compose.SaleItem{
			{ProductID: 7, Quantity: money("2")},
			{ProductID: 8, Quantity: money("-1")},
		},
	})

	// WHEN: It is posted
	f.post(t, p, err)

	// THEN: COGS is the signed sum at average cost: 2*30 - 1*40
	f.assertBalances(t, map[ledger.Role]string{
		ledger.RoleCOGS:      "20",
		ledger.RoleInventory: "-20",
		ledger.RoleCash:      "55",
	})
}

func TestSale_EvenExchangeHasNoLedgerEffect(t *testing.T) {
	// GIVEN: One unit sold and the same unit returned at the same price and cost
	f := newFixture(t)
	f.costs.Receive(7, money("10"), money("6"))
	tests := []struct {
		name     string
		method   compose.PaymentMethod
		customer ledger.EntityID
	}{
		{"cash", compose.MethodCash, 0},
		{"credit", compose.MethodCredit, 1},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// WHEN: The invoice is composed and posted
			p, err := f.composer.Sale(context.Background(), compose.Sale{
				InvoiceID: int64(20 + i), InvoiceNumber: "INV-EX-" + tt.name, Date: march,
				Method: tt.method, CustomerID: tt.customer,
				NetTotal: money("0"), TaxAmount: money("0"),
				Items: []compose.SaleItem{
					{ProductID: 7, Quantity: money("1")},
					{ProductID: 7, Quantity: money("-1")},
				},
			})
			require.NoError(t, err)
			assert.True(t, p.Empty())
			res := f.post(t, p, err)

			// THEN: Nothing is written and no balance moves
			assert.Empty(t, res.Entries)
		})
	}

	entries, err := f.store.ListEntries(context.Background(), ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	f.assertBalances(t, map[ledger.Role]string{
		ledger.RoleCash:       "0",
		ledger.RoleReceivable: "0",
		ledger.RoleCOGS:       "0",
	})
	assert.True(t, f.ledgerBalance(t, ledger.KindCustomer, 1).IsZero())
}

func TestSale_FullReturnReversesSides(t *testing.T) {
	f := newFixture(t)
	p, err := f.composer.Sale(context.Background(), compose.Sale{
		InvoiceID: 5, InvoiceNumber: "INV-0005", Date: march, Method: compose.MethodCash,
		NetTotal: money("-220"), TaxAmount: money("-20"),
		Items: []compose.SaleItem{{ProductID: 7, Quantity: money("-10"), UnitCost: ptr(money("12"))}},
	})
	f.post(t, p, err)

	f.assertBalances(t, map[ledger.Role]string{
		ledger.RoleCash:         "-220",
		ledger.RoleSalesRevenue: "-200",
		ledger.RoleTaxPayable:   "-20",
		ledger.RoleCOGS:         "-120",
		ledger.RoleInventory:    "120",
	})
}

func TestSale_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.composer.Sale(ctx, compose.Sale{InvoiceNumber: "X", Date: march, Method: compose.MethodCredit, NetTotal: money("5")})
	assert.Equal(t, ledger.CodeNoCounterparty, validationCode(err))

	_, err = f.composer.Sale(ctx, compose.Sale{InvoiceNumber: "Y", Date: march, Method: "Barter", NetTotal: money("5")})
	assert.Equal(t, ledger.CodeBadType, validationCode(err))
}

func TestComputeInvoiceTotals(t *testing.T) {
	// GIVEN: Two sold lines and one returned line
	items := []compose.InvoiceLine{
		{Quantity: money("2"), UnitPrice: money("50"), TaxPercent: money("10"), DiscountPercent: money("0")},
		{Quantity: money("1"), UnitPrice: money("20"), TaxPercent: money("0"), DiscountPercent: money("5")},
		{Quantity: money("-1"), UnitPrice: money("30"), TaxPercent: money("10"), DiscountPercent: money("0")},
	}

	totals := compose.ComputeInvoiceTotals(items, money("2"))

	// THEN: sub 100+20-30, tax 10-3, discount 1+2
	assert.True(t, totals.SubTotal.Equal(money("90")), totals.SubTotal.String())
	assert.True(t, totals.Tax.Equal(money("7")), totals.Tax.String())
	assert.True(t, totals.Discount.Equal(money("3")), totals.Discount.String())
	assert.True(t, totals.Net.Equal(money("94")), totals.Net.String())
}

// =============================================================================
// PURCHASES
// =============================================================================

func TestPurchase_CreditWithAdvanceTax(t *testing.T) {
	// GIVEN: A credit GRN with freight and advance tax
	f := newFixture(t)
	p, err := f.composer.Purchase(compose.GRN{
		GRNID: 1, GRNNumber: "GRN-0001", Date: march, SupplierID: 1,
		SubTotal: money("20000"), Freight: money("500"), Discount: money("100"), AdvanceTax: money("200"),
		NetTotal: money("20600"), Mode: compose.ModeCredit,
	})

	res := f.post(t, p, err)

	// THEN: Landed cost goes to inventory, advance tax to its asset, the rest is owed
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "JE-PUR-2025-00001", res.Entries[0].Number)
	f.assertBalances(t, map[ledger.Role]string{
		ledger.RoleInventory:  "20400",
		ledger.RoleAdvanceTax: "200",
		ledger.RolePayable:    "20600",
	})
	assert.True(t, f.ledgerBalance(t, ledger.KindSupplier, 1).Equal(money("20600")))
}

func TestPurchase_CashSettlesImmediately(t *testing.T) {
	// GIVEN: A cash GRN
	f := newFixture(t)
	p, err := f.composer.Purchase(compose.GRN{
		GRNID: 2, GRNNumber: "GRN-0002", Date: march, SupplierID: 1,
		SubTotal: money("5000"), NetTotal: money("5000"), Mode: compose.ModeCash,
	})

	// WHEN: It is posted
	res := f.post(t, p, err)

	// THEN: Purchase and payment entries, two supplier rows netting to zero
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "JE-PUR-2025-00001", res.Entries[0].Number)
	assert.Equal(t, "JE-PAY-2025-00001", res.Entries[1].Number)
	require.Len(t, res.Rows, 2)
	assert.True(t, res.Rows[0].Balance.Equal(money("5000")))
	assert.True(t, res.Rows[1].Balance.IsZero())
	f.assertBalances(t, map[ledger.Role]string{
		ledger.RoleInventory: "5000",
		ledger.RolePayable:   "0",
		ledger.RoleCash:      "-5000",
	})
}

func TestPurchase_Rejections(t *testing.T) {
	f := newFixture(t)
	base := compose.GRN{GRNNumber: "GRN-9", Date: march, SupplierID: 1, SubTotal: money("100"), NetTotal: money("100"), Mode: compose.ModeCredit}

	tests := []struct {
		name   string
		mutate func(*compose.GRN)
		code   string
	}{
		{"components disagree with net", func(g *compose.GRN) { g.NetTotal = money("101") }, ledger.CodeUnbalancedSource},
		{"no supplier", func(g *compose.GRN) { g.SupplierID = 0 }, ledger.CodeNoCounterparty},
		{"unknown mode", func(g *compose.GRN) { g.Mode = "Barter" }, ledger.CodeBadType},
		{"zero net", func(g *compose.GRN) { g.SubTotal, g.NetTotal = decimal.Zero, decimal.Zero }, ledger.CodeBadAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := base
			tt.mutate(&g)

			_, err := f.composer.Purchase(g)

			assert.Equal(t, tt.code, validationCode(err))
		})
	}
}

func TestPoster_RollsBackWholeEvent(t *testing.T) {
	// GIVEN: A cash GRN for a supplier the tenant has never registered
	f := newFixture(t)
	p, err := f.composer.Purchase(compose.GRN{
		GRNID: 3, GRNNumber: "GRN-0003", Date: march, SupplierID: 42,
		SubTotal: money("900"), NetTotal: money("900"), Mode: compose.ModeCash,
	})
	require.NoError(t, err)

	// WHEN: It is posted
	_, err = f.poster.Post(context.Background(), p)

	// THEN: It fails and neither entry nor any cache survives
	assert.True(t, ledger.IsNotFound(err))
	entries, err := f.journal.ListEntries(context.Background(), ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	f.assertBalances(t, map[ledger.Role]string{ledger.RoleInventory: "0", ledger.RoleCash: "0"})
	cached, err := ledger.NewBalanceCalculator(f.store).CachedBalance(context.Background(), f.chart.ID(ledger.RoleInventory))
	require.NoError(t, err)
	assert.True(t, cached.IsZero())
}

// =============================================================================
// VOUCHERS, VARIANCE, ADJUSTMENTS
// =============================================================================

func TestVouchers_SettleSubledgers(t *testing.T) {
	// GIVEN: A supplier owed 1000 and a customer owing 400
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.composer.Purchase(compose.GRN{GRNID: 1, GRNNumber: "GRN-0001", Date: march, SupplierID: 1,
		SubTotal: money("1000"), NetTotal: money("1000"), Mode: compose.ModeCredit})
	f.post(t, p, err)
	p, err = f.composer.Sale(ctx, compose.Sale{InvoiceID: 1, InvoiceNumber: "INV-0001", Date: march,
		Method: compose.MethodCredit, CustomerID: 1, NetTotal: money("400")})
	f.post(t, p, err)

	// WHEN: Both are partly settled
	p, err = f.composer.PaymentVoucher(compose.Voucher{VoucherID: 1, Date: march.AddDays(1),
		PartyType: compose.PartySupplier, PartyID: 1, Amount: money("600"), AccountID: f.chart.ID(ledger.RoleBank)})
	pay := f.post(t, p, err)
	p, err = f.composer.ReceiptVoucher(compose.Voucher{VoucherID: 1, Date: march.AddDays(1),
		PartyType: compose.PartyCustomer, PartyID: 1, Amount: money("150")})
	rec := f.post(t, p, err)

	// THEN: Vouchers get their own numbers and the rows reference them
	assert.Equal(t, "PV-2025-00001", pay.Voucher)
	require.Len(t, pay.Rows, 1)
	assert.Equal(t, "PV-2025-00001", pay.Rows[0].Reference)
	assert.True(t, pay.Rows[0].Debit.Equal(money("600")))
	assert.Equal(t, "RV-2025-00001", rec.Voucher)
	require.Len(t, rec.Rows, 1)
	assert.True(t, rec.Rows[0].Credit.Equal(money("150")))

	assert.True(t, f.ledgerBalance(t, ledger.KindSupplier, 1).Equal(money("400")))
	assert.True(t, f.ledgerBalance(t, ledger.KindCustomer, 1).Equal(money("250")))
	f.assertBalances(t, map[ledger.Role]string{
		ledger.RolePayable:    "400",
		ledger.RoleReceivable: "250",
		ledger.RoleBank:       "-600",
		ledger.RoleCash:       "150",
	})
}

func TestVouchers_ExpenseAndIncome(t *testing.T) {
	f := newFixture(t)

	p, err := f.composer.PaymentVoucher(compose.Voucher{VoucherID: 2, Date: march, PartyType: compose.PartyOther,
		PartyName: "Electricity", Amount: money("800")})
	res := f.post(t, p, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, "Payment to Electricity", res.Entries[0].Description)

	p, err = f.composer.ReceiptVoucher(compose.Voucher{VoucherID: 2, Date: march, PartyType: compose.PartyOther,
		Amount: money("75")})
	f.post(t, p, err)

	f.assertBalances(t, map[ledger.Role]string{
		ledger.RoleOtherExpense: "800",
		ledger.RoleOtherIncome:  "75",
		ledger.RoleCash:         "-725",
	})

	_, err = f.composer.PaymentVoucher(compose.Voucher{Date: march, PartyType: compose.PartyOther, Amount: money("0")})
	assert.Equal(t, ledger.CodeBadAmount, validationCode(err))
}

func TestCashVariance(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		counted  string
		want     map[ledger.Role]string
		empty    bool
	}{
		{"over", "1000", "1012.50", map[ledger.Role]string{ledger.RoleCash: "12.50", ledger.RoleOtherIncome: "12.50"}, false},
		{"short", "1000", "990", map[ledger.Role]string{ledger.RoleCash: "-10", ledger.RoleOtherExpense: "10"}, false},
		{"exact", "1000", "1000", map[ledger.Role]string{ledger.RoleCash: "0"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.composer.CashVariance(compose.CashSessionClose{
				SessionID: 1, SessionNumber: "CS-0001", Date: march,
				Expected: money(tt.expected), Counted: money(tt.counted),
			})
			assert.Equal(t, tt.empty, p.Empty())

			f.post(t, p, nil)

			f.assertBalances(t, tt.want)
		})
	}
}

func TestAdjustment_ReturnToSupplierAtAverageCost(t *testing.T) {
	// GIVEN: A supplier owed 2000 and stock averaging 20.50
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.composer.Purchase(compose.GRN{GRNID: 1, GRNNumber: "GRN-0001", Date: march, SupplierID: 1,
		SubTotal: money("2000"), NetTotal: money("2000"), Mode: compose.ModeCredit})
	f.post(t, p, err)
	f.costs.Receive(102, money("40"), money("20"))
	f.costs.Receive(102, money("40"), money("21"))

	// WHEN: 20 units go back
	p, err = f.composer.Adjustment(ctx, compose.Adjustment{
		AdjustmentID: 1, Date: march.AddDays(2), Type: compose.AdjustReturnToSupplier,
		SupplierID: 1, ProductID: 102, BatchNumber: "B1", Quantity: money("-20"),
	})
	res := f.post(t, p, err)

	// THEN: Payable and inventory drop by 410 and the supplier row says so
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "ADJ-1", res.Rows[0].Reference)
	assert.True(t, f.ledgerBalance(t, ledger.KindSupplier, 1).Equal(money("1590")))
	f.assertBalances(t, map[ledger.Role]string{
		ledger.RolePayable:   "1590",
		ledger.RoleInventory: "1590",
	})
}

func TestAdjustment_StockOnlyTypes(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []compose.AdjustmentType{compose.AdjustDamage, compose.AdjustExpiry, compose.AdjustCount} {
		p, err := f.composer.Adjustment(context.Background(), compose.Adjustment{
			AdjustmentID: 9, Date: march, Type: typ, ProductID: 1, Quantity: money("3"), UnitCost: ptr(money("5")),
		})
		require.NoError(t, err)
		assert.True(t, p.Empty(), typ)
	}
}

// =============================================================================
// COSTING
// =============================================================================

func TestCostBook_WeightedAverage(t *testing.T) {
	book := compose.NewCostBook()

	assert.True(t, book.Receive(1, money("100"), money("10")).Equal(money("10")))
	assert.True(t, book.Receive(1, money("100"), money("12")).Equal(money("11")))

	book.Issue(1, money("50"))
	qty, avg := book.OnHand(1)
	assert.True(t, qty.Equal(money("150")))
	assert.True(t, avg.Equal(money("11")))

	// Oversold stock does not drag the next average below the receipt cost
	book.Issue(1, money("200"))
	assert.True(t, book.Receive(1, money("10"), money("15")).Equal(money("15")))

	_, err := book.UnitCost(context.Background(), 99, 0)
	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))

	book.Issue(99, money("5"))
	_, err = book.UnitCost(context.Background(), 99, 0)
	assert.True(t, ledger.IsNotFound(err), "issuing does not make a product known")
}

func TestSale_UnknownProductCostIsNotFound(t *testing.T) {
	// GIVEN: A sale line for stock the cost book has never received
	f := newFixture(t)

	// WHEN: The sale is composed without an explicit unit cost
	_, err := f.composer.Sale(context.Background(), compose.Sale{
		InvoiceID: 11, InvoiceNumber: "INV-0011", Date: march, Method: compose.MethodCash,
		NetTotal: money("50"),
		Items:    []compose.SaleItem{{ProductID: 404, Quantity: money("1")}},
	})

	// THEN: It is refused instead of booking zero COGS
	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))
	assert.Contains(t, err.Error(), "INV-0011")
}

func TestAdjustment_ReturnOfUnknownProductIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.composer.Adjustment(context.Background(), compose.Adjustment{
		AdjustmentID: 12, Date: march, Type: compose.AdjustReturnToSupplier,
		SupplierID: 1, ProductID: 404, Quantity: money("-2"),
	})

	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))
}
