/*
Package report builds read-only views over a tenant's books.

PURPOSE:
  Every report is a pure aggregation: it reads the chart, the posted entry
  log and the subsidiary ledgers and writes nothing. Point-in-time reports
  (trial balance, balance sheet, aging) replay up to a date; period reports
  (income statement, registers, day book) look only at entries dated
  inside [from, to].

REPORTS:
  TrialBalance     balance of every active account, split debit/credit
  BalanceSheet     assets, liabilities, equity + synthetic Net Profit line
  IncomeStatement  revenue and expense movement inside the period
  GeneralLedger    one account's lines with a running balance
  DayBook          every posted entry with a cumulative debit total
  PurchaseRegister GRN purchases with their supplier
  SalesRegister    invoice sales and returns, signed
  Statement        one counterparty's rows with a re-derived balance
  Aging            AP or AR aging for every counterparty with rows

SEE ALSO:
  - ledger/balance.go: balanceAsOf
  - ledger/aging.go: the bucketing algorithm
*/
package report

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// Generator builds reports for one tenant.
type Generator struct {
	store    ledger.Store
	chart    *ledger.Chart
	balances *ledger.BalanceCalculator
	aging    *ledger.AgingAllocator
}

func NewGenerator(store ledger.Store, chart *ledger.Chart) *Generator {
	return &Generator{
		store:    store,
		chart:    chart,
		balances: ledger.NewBalanceCalculator(store),
		aging:    ledger.NewAgingAllocator(store),
	}
}

// accountIndex loads the chart keyed by id, for labelling lines.
func (g *Generator) accountIndex(ctx context.Context) (map[ledger.AccountID]ledger.Account, error) {
	accounts, err := g.store.ListAccounts(ctx, ledger.AccountFilter{})
	if err != nil {
		return nil, err
	}
	idx := make(map[ledger.AccountID]ledger.Account, len(accounts))
	for _, a := range accounts {
		idx[a.ID] = a
	}
	return idx, nil
}

// splitSides puts a normal-signed balance in the column its type and sign
// call for.
func splitSides(t ledger.AccountType, balance decimal.Decimal) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	positive := !balance.IsNegative()
	if t.DebitNormal() == positive {
		debit = balance.Abs()
	} else {
		credit = balance.Abs()
	}
	return debit, credit
}
