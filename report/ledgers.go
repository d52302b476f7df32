package report

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// GENERAL LEDGER
// =============================================================================

type GeneralLedgerItem struct {
	Date        ledger.Date     `json:"date"`
	EntryID     ledger.EntryID  `json:"entry_id"`
	EntryNumber string          `json:"entry_number"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

type GeneralLedger struct {
	AccountID      ledger.AccountID    `json:"account_id"`
	AccountCode    string              `json:"account_code"`
	AccountName    string              `json:"account_name"`
	AccountType    ledger.AccountType  `json:"account_type"`
	From           ledger.Date         `json:"from"`
	To             ledger.Date         `json:"to"`
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
	ClosingBalance decimal.Decimal     `json:"closing_balance"`
	Items          []GeneralLedgerItem `json:"items"`
}

// GeneralLedger replays one account's posted lines in (date, id) order,
// starting from its balance at the end of the day before 'from'.
func (g *Generator) GeneralLedger(ctx context.Context, id ledger.AccountID, from, to ledger.Date) (*GeneralLedger, error) {
	acct, err := g.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	opening, err := g.balances.BalanceOf(ctx, acct, from.AddDays(-1))
	if err != nil {
		return nil, err
	}
	lines, err := g.store.AccountLines(ctx, id, from, to)
	if err != nil {
		return nil, err
	}

	gl := &GeneralLedger{
		AccountID:      acct.ID,
		AccountCode:    acct.Code,
		AccountName:    acct.Name,
		AccountType:    acct.Type,
		From:           from,
		To:             to,
		OpeningBalance: opening,
	}
	running := opening
	for _, l := range lines {
		running = running.Add(acct.Type.SignedDelta(l.Debit, l.Credit))
		desc := l.Description
		if desc == "" {
			desc = l.EntryDesc
		}
		gl.Items = append(gl.Items, GeneralLedgerItem{
			Date:        l.EntryDate,
			EntryID:     l.EntryID,
			EntryNumber: l.EntryNumber,
			Description: desc,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Balance:     running,
		})
	}
	gl.ClosingBalance = running
	return gl, nil
}

// =============================================================================
// DAY BOOK
// =============================================================================

type DayBookLine struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
}

type DayBookEntry struct {
	EntryID         ledger.EntryID         `json:"entry_id"`
	EntryNumber     string                 `json:"entry_number"`
	Date            ledger.Date            `json:"date"`
	TransactionType ledger.TransactionType `json:"transaction_type"`
	Description     string                 `json:"description"`
	TotalDebit      decimal.Decimal        `json:"total_debit"`
	TotalCredit     decimal.Decimal        `json:"total_credit"`
	RunningDebit    decimal.Decimal        `json:"running_debit"`
	Lines           []DayBookLine          `json:"lines"`
}

type DayBook struct {
	From        ledger.Date     `json:"from"`
	To          ledger.Date     `json:"to"`
	Entries     []DayBookEntry  `json:"entries"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
}

// DayBook lists posted entries in (date, id) order. RunningDebit is the
// cumulative debit total through each entry.
func (g *Generator) DayBook(ctx context.Context, from, to ledger.Date) (*DayBook, error) {
	entries, err := g.store.ListEntries(ctx, ledger.EntryFilter{From: &from, To: &to, PostedOnly: true})
	if err != nil {
		return nil, err
	}
	accounts, err := g.accountIndex(ctx)
	if err != nil {
		return nil, err
	}

	db := &DayBook{From: from, To: to, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, e := range entries {
		db.TotalDebit = db.TotalDebit.Add(e.TotalDebit)
		db.TotalCredit = db.TotalCredit.Add(e.TotalCredit)
		item := DayBookEntry{
			EntryID:         e.ID,
			EntryNumber:     e.Number,
			Date:            e.Date,
			TransactionType: e.TransactionType,
			Description:     e.Description,
			TotalDebit:      e.TotalDebit,
			TotalCredit:     e.TotalCredit,
			RunningDebit:    db.TotalDebit,
		}
		for _, l := range e.Lines {
			a := accounts[l.AccountID]
			item.Lines = append(item.Lines, DayBookLine{
				AccountCode: a.Code,
				AccountName: a.Name,
				Debit:       l.Debit,
				Credit:      l.Credit,
				Description: l.Description,
			})
		}
		db.Entries = append(db.Entries, item)
	}
	return db, nil
}

// =============================================================================
// COUNTERPARTY STATEMENT
// =============================================================================

// Statement is one supplier's or customer's rows over [from, to].
func (g *Generator) Statement(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID, from, to ledger.Date) (*ledger.Statement, error) {
	if !kind.Valid() {
		return nil, ledger.Invalid(ledger.CodeBadType, "unknown counterparty kind %q", kind)
	}
	return ledger.BuildStatement(ctx, g.store, kind, id, from, to)
}
