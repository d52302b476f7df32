package report

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// TRIAL BALANCE
// =============================================================================

type TrialBalanceItem struct {
	AccountID ledger.AccountID   `json:"account_id"`
	Code      string             `json:"code"`
	Name      string             `json:"name"`
	Type      ledger.AccountType `json:"type"`
	Debit     decimal.Decimal    `json:"debit"`
	Credit    decimal.Decimal    `json:"credit"`
}

type TrialBalance struct {
	AsOf        ledger.Date        `json:"as_of"`
	Items       []TrialBalanceItem `json:"items"`
	TotalDebit  decimal.Decimal    `json:"total_debit"`
	TotalCredit decimal.Decimal    `json:"total_credit"`
}

// Balanced reports whether the two columns agree.
func (tb *TrialBalance) Balanced() bool { return tb.TotalDebit.Equal(tb.TotalCredit) }

// TrialBalance lists every active account, zero balances included, and
// every deactivated account that still carries a balance at asOf.
func (g *Generator) TrialBalance(ctx context.Context, asOf ledger.Date) (*TrialBalance, error) {
	accounts, err := g.store.ListAccounts(ctx, ledger.AccountFilter{})
	if err != nil {
		return nil, err
	}
	tb := &TrialBalance{AsOf: asOf, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for i := range accounts {
		a := &accounts[i]
		bal, err := g.balances.BalanceOf(ctx, a, asOf)
		if err != nil {
			return nil, err
		}
		if retired(a, bal) {
			continue
		}
		dr, cr := splitSides(a.Type, bal)
		tb.Items = append(tb.Items, TrialBalanceItem{
			AccountID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type,
			Debit: dr, Credit: cr,
		})
		tb.TotalDebit = tb.TotalDebit.Add(dr)
		tb.TotalCredit = tb.TotalCredit.Add(cr)
	}
	return tb, nil
}

// =============================================================================
// BALANCE SHEET
// =============================================================================

// NetProfitLabel names the synthetic equity line.
const NetProfitLabel = "Net Profit (Retained Earnings)"

type StatementLine struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type BalanceSheet struct {
	AsOf             ledger.Date     `json:"as_of"`
	Assets           []StatementLine `json:"assets"`
	Liabilities      []StatementLine `json:"liabilities"`
	Equity           []StatementLine `json:"equity"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	NetProfit        decimal.Decimal `json:"net_profit"`
}

// Balanced reports whether assets equal liabilities plus equity.
func (bs *BalanceSheet) Balanced() bool {
	return bs.TotalAssets.Equal(bs.TotalLiabilities.Add(bs.TotalEquity))
}

// BalanceSheet is cumulative to asOf. Revenue and expense balances are not
// closed into equity by entries, so their difference is shown as a Net
// Profit equity line. Account selection follows TrialBalance.
func (g *Generator) BalanceSheet(ctx context.Context, asOf ledger.Date) (*BalanceSheet, error) {
	accounts, err := g.store.ListAccounts(ctx, ledger.AccountFilter{})
	if err != nil {
		return nil, err
	}
	bs := &BalanceSheet{
		AsOf:             asOf,
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
		TotalEquity:      decimal.Zero,
	}
	revenue, expense := decimal.Zero, decimal.Zero

	for i := range accounts {
		a := &accounts[i]
		bal, err := g.balances.BalanceOf(ctx, a, asOf)
		if err != nil {
			return nil, err
		}
		if retired(a, bal) {
			continue
		}
		line := StatementLine{Code: a.Code, Name: a.Name, Amount: bal}
		switch a.Type {
		case ledger.AccountAsset:
			bs.Assets = append(bs.Assets, line)
			bs.TotalAssets = bs.TotalAssets.Add(bal)
		case ledger.AccountLiability:
			bs.Liabilities = append(bs.Liabilities, line)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(bal)
		case ledger.AccountEquity:
			bs.Equity = append(bs.Equity, line)
			bs.TotalEquity = bs.TotalEquity.Add(bal)
		case ledger.AccountRevenue:
			revenue = revenue.Add(bal)
		case ledger.AccountExpense:
			expense = expense.Add(bal)
		}
	}

	bs.NetProfit = revenue.Sub(expense)
	if !bs.NetProfit.IsZero() {
		bs.Equity = append(bs.Equity, StatementLine{Name: NetProfitLabel, Amount: bs.NetProfit})
		bs.TotalEquity = bs.TotalEquity.Add(bs.NetProfit)
	}
	return bs, nil
}

// =============================================================================
// INCOME STATEMENT
// =============================================================================

type IncomeStatement struct {
	From          ledger.Date     `json:"from"`
	To            ledger.Date     `json:"to"`
	Revenue       []StatementLine `json:"revenue"`
	Expenses      []StatementLine `json:"expenses"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetProfit     decimal.Decimal `json:"net_profit"`
}

// IncomeStatement sums only lines dated inside [from, to]; nothing before
// the period and no opening balances count. Deactivated accounts appear when
// they moved inside the period.
func (g *Generator) IncomeStatement(ctx context.Context, from, to ledger.Date) (*IncomeStatement, error) {
	if to.Before(from) {
		return nil, ledger.Invalid(ledger.CodeBadDate, "period ends (%s) before it starts (%s)", to, from)
	}
	accounts, err := g.store.ListAccounts(ctx, ledger.AccountFilter{})
	if err != nil {
		return nil, err
	}
	is := &IncomeStatement{From: from, To: to, TotalRevenue: decimal.Zero, TotalExpenses: decimal.Zero}
	for i := range accounts {
		a := &accounts[i]
		if a.Type != ledger.AccountRevenue && a.Type != ledger.AccountExpense {
			continue
		}
		amount, err := g.balances.PeriodMovement(ctx, a, from, to)
		if err != nil {
			return nil, err
		}
		if amount.IsZero() {
			continue
		}
		line := StatementLine{Code: a.Code, Name: a.Name, Amount: amount}
		if a.Type == ledger.AccountRevenue {
			is.Revenue = append(is.Revenue, line)
			is.TotalRevenue = is.TotalRevenue.Add(amount)
		} else {
			is.Expenses = append(is.Expenses, line)
			is.TotalExpenses = is.TotalExpenses.Add(amount)
		}
	}
	is.NetProfit = is.TotalRevenue.Sub(is.TotalExpenses)
	return is, nil
}

// retired reports whether a deactivated account has nothing left to show.
func retired(a *ledger.Account, bal decimal.Decimal) bool {
	return !a.IsActive && bal.IsZero()
}
