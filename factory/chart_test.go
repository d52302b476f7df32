package factory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/factory"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/ledger/store"
)

func TestDefaultChart_SeedsAndResolves(t *testing.T) {
	// GIVEN: An empty tenant store
	ctx := context.Background()
	mem := store.NewMemory()
	reg := ledger.NewRegistry(mem)
	f := factory.NewChartFactory()

	// WHEN: The default chart is seeded
	def, err := f.Default()
	require.NoError(t, err)
	created, err := f.Seed(ctx, reg, def)
	require.NoError(t, err)

	// THEN: Every account exists and every role resolves
	assert.Equal(t, len(def.Accounts), created)
	chart, err := ledger.ResolveChart(ctx, mem, def.RoleCodes())
	require.NoError(t, err)
	assert.Equal(t, "1450", chart.Account(ledger.RoleAdvanceTax).Code)

	cash, err := reg.GetAccountByCode(ctx, "1000")
	require.NoError(t, err)
	root, err := reg.GetAccountByCode(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, cash.ParentID)
	assert.Equal(t, root.ID, *cash.ParentID)
}

func TestSeed_Idempotent(t *testing.T) {
	// GIVEN: A tenant already seeded once
	ctx := context.Background()
	mem := store.NewMemory()
	reg := ledger.NewRegistry(mem)
	f := factory.NewChartFactory()
	def, err := f.Default()
	require.NoError(t, err)
	_, err = f.Seed(ctx, reg, def)
	require.NoError(t, err)

	// WHEN: Seeding again
	created, err := f.Seed(ctx, reg, def)

	// THEN: Nothing new is created
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestParseChart_OrdersParentsFirst(t *testing.T) {
	// GIVEN: A child listed before its parent
	yml := []byte(`
name: tiny
accounts:
  - {code: "1510", name: Furniture, type: asset, parent: "1500"}
  - {code: "1500", name: Fixed Assets, type: Asset, parent: "1"}
  - {code: "1", name: Assets, type: Asset}
`)

	// WHEN: Parsing
	def, err := factory.NewChartFactory().ParseChart(yml)

	// THEN: The accounts come back root first
	require.NoError(t, err)
	require.Len(t, def.Accounts, 3)
	assert.Equal(t, "1", def.Accounts[0].Code)
	assert.Equal(t, "1500", def.Accounts[1].Code)
	assert.Equal(t, "1510", def.Accounts[2].Code)
}

func TestParseChart_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{"no accounts", `name: empty`},
		{"bad type", `accounts: [{code: "1", name: A, type: Asset2}]`},
		{"code too long", `accounts: [{code: "123456789012345678901", name: A, type: Asset}]`},
		{"own parent", `accounts: [{code: "1", name: A, type: Asset, parent: "1"}]`},
		{"opening not a number", `accounts: [{code: "1", name: A, type: Asset, opening_balance: "ten"}]`},
		{"missing name", `accounts: [{code: "1", type: Asset}]`},
		{"duplicate code", `accounts: [{code: "1", name: A, type: Asset}, {code: "1", name: B, type: Asset}]`},
		{"unknown parent", `accounts: [{code: "10", name: A, type: Asset, parent: "9"}]`},
		{"parent type mismatch", `accounts: [{code: "1", name: A, type: Asset}, {code: "10", name: B, type: Expense, parent: "1"}]`},
		{"parent cycle", `accounts: [{code: "1", name: A, type: Asset, parent: "2"}, {code: "2", name: B, type: Asset, parent: "1"}]`},
		{"opening precision", `accounts: [{code: "1", name: A, type: Asset, opening_balance: "1.005"}]`},
		{"unknown role", "accounts: [{code: \"1\", name: A, type: Asset}]\nroles: {vault: \"1\"}"},
		{"not yaml", `accounts: [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.NewChartFactory().ParseChart([]byte(tt.yml))
			assert.Error(t, err)
		})
	}
}

func TestParseChart_NamesEveryBadField(t *testing.T) {
	// GIVEN: One account without a name and one with an unknown type
	yml := []byte(`
name: broken
accounts:
  - {code: "1", type: Asset}
  - {code: "2", name: Debts, type: Liabilities}
`)

	// WHEN: Parsing
	_, err := factory.NewChartFactory().ParseChart(yml)

	// THEN: Both problems are reported by their YAML paths
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid chart "broken"`)
	assert.Contains(t, err.Error(), "accounts[0].name: required")
	assert.Contains(t, err.Error(), `accounts[1].type: oneof=Asset Liability Equity Revenue Expense "Liabilities"`)
}

func TestParseChart_TypeIsCaseInsensitive(t *testing.T) {
	def, err := factory.NewChartFactory().ParseChart([]byte(`accounts: [{code: " 1 ", name: Assets, type: ASSET}]`))

	require.NoError(t, err)
	assert.Equal(t, "1", def.Accounts[0].Code)
	assert.Equal(t, "Asset", def.Accounts[0].Type)
}

func TestRoleCodes_OverridesMergeOverDefaults(t *testing.T) {
	// GIVEN: A chart rebinding the bank role
	def := &factory.ChartDefinition{Roles: map[string]string{"bank": "1110"}}

	// WHEN: Building the role map
	codes := def.RoleCodes()

	// THEN: Only the bank role moves
	assert.Equal(t, "1110", codes[ledger.RoleBank])
	assert.Equal(t, "1000", codes[ledger.RoleCash])
	assert.Len(t, codes, len(ledger.DefaultRoleCodes))
}

func TestLoadFile_OpeningBalance(t *testing.T) {
	// GIVEN: A chart file with an opening balance
	path := filepath.Join(t.TempDir(), "chart.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - {code: "3000", name: Capital, type: Equity, opening_balance: "2500.50"}
`), 0o644))

	// WHEN: Loading and seeding it
	ctx := context.Background()
	mem := store.NewMemory()
	f := factory.NewChartFactory()
	def, err := f.LoadFile(path)
	require.NoError(t, err)
	_, err = f.Seed(ctx, ledger.NewRegistry(mem), def)
	require.NoError(t, err)

	// THEN: The account carries the balance
	acct, err := mem.GetAccountByCode(ctx, "3000")
	require.NoError(t, err)
	assert.True(t, acct.OpeningBalance.Equal(decimal.RequireFromString("2500.50")))
}
