/*
Package ledger provides the double-entry ledger engine.

PURPOSE:
  This package owns the bookkeeping invariants of a tenant's books. Every
  financial side-effect of a sale, purchase, return, stock adjustment or cash
  session close ends up here as a balanced JournalEntry. Balances are always
  derived by replaying the immutable entry log; the cached balances on
  accounts and counterparties are hints that can be rebuilt at any time.

KEY CONCEPTS IN THIS FILE (types.go):
  - AccountType: Asset/Liability/Equity/Revenue/Expense, which fixes the normal side
  - TransactionType: Sale/Purchase/Payment/Receipt/Adjustment/Opening/Closing
  - Account, JournalEntry, Line: the persisted chart and log
  - EntryDraft: what a composer hands to the Journal

DESIGN PRINCIPLES:
  1. Immutability: entries are never edited, only reversed by a new entry
  2. Precision: all amounts are decimal.Decimal with at most 2 decimal places
  3. Replay: point-in-time balances come from the log, never from a cache
  4. Type safety: AccountID, EntryID and EntityID cannot be mixed up

SEE ALSO:
  - journal.go: entry validation, numbering and posting
  - balance.go: point-in-time balances and cache rebuild
  - subledger.go: supplier/customer running-balance logs
  - aging.go: outstanding balance bucketing
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNTS
// =============================================================================

// MoneyPlaces is the number of decimal places every posted amount carries.
const MoneyPlaces = 2

// Round2 rounds an amount to posting precision (half away from zero).
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

// IsMoney reports whether d has no more than two decimal places.
func IsMoney(d decimal.Decimal) bool { return d.Equal(Round2(d)) }

// MustParseDecimal parses a decimal literal and panics if it is malformed.
func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID int64
type EntryID int64
type EntityID int64

// =============================================================================
// ACCOUNT TYPES
// =============================================================================

type AccountType string

const (
	AccountAsset     AccountType = "Asset"
	AccountLiability AccountType = "Liability"
	AccountEquity    AccountType = "Equity"
	AccountRevenue   AccountType = "Revenue"
	AccountExpense   AccountType = "Expense"
)

// AccountTypes lists every account type in chart order.
var AccountTypes = []AccountType{AccountAsset, AccountLiability, AccountEquity, AccountRevenue, AccountExpense}

func (t AccountType) Valid() bool {
	switch t {
	case AccountAsset, AccountLiability, AccountEquity, AccountRevenue, AccountExpense:
		return true
	}
	return false
}

// DebitNormal is true for Asset and Expense accounts.
func (t AccountType) DebitNormal() bool {
	return t == AccountAsset || t == AccountExpense
}

// SignedDelta is the effect of a debit/credit pair on a balance of this type.
func (t AccountType) SignedDelta(debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// =============================================================================
// TRANSACTION & REFERENCE TYPES
// =============================================================================

type TransactionType string

const (
	TxSale       TransactionType = "Sale"
	TxPurchase   TransactionType = "Purchase"
	TxPayment    TransactionType = "Payment"
	TxReceipt    TransactionType = "Receipt"
	TxAdjustment TransactionType = "Adjustment"
	TxOpening    TransactionType = "Opening"
	TxClosing    TransactionType = "Closing"
)

var entryPrefixes = map[TransactionType]string{
	TxSale:       "JE-SALE",
	TxPurchase:   "JE-PUR",
	TxPayment:    "JE-PAY",
	TxReceipt:    "JE-REC",
	TxAdjustment: "JE-ADJ",
	TxOpening:    "JE-OPEN",
	TxClosing:    "JE-CLOSE",
}

func (t TransactionType) Valid() bool {
	_, ok := entryPrefixes[t]
	return ok
}

// EntryPrefix is the fixed entry-number prefix for the type.
func (t TransactionType) EntryPrefix() string { return entryPrefixes[t] }

type ReferenceType string

const (
	RefInvoice     ReferenceType = "Invoice"
	RefGRN         ReferenceType = "GRN"
	RefPayment     ReferenceType = "Payment"
	RefReceipt     ReferenceType = "Receipt"
	RefAdjustment  ReferenceType = "Adjustment"
	RefCashSession ReferenceType = "CashSession"
	RefReversal    ReferenceType = "Reversal"
	RefManual      ReferenceType = "Manual"
)

// =============================================================================
// ACCOUNT
// =============================================================================

type Account struct {
	ID             AccountID
	Code           string
	Name           string
	Type           AccountType
	ParentID       *AccountID
	IsActive       bool
	OpeningBalance decimal.Decimal

	// CurrentBalance is a cache maintained on every posting. It must always
	// equal opening + replay of all posted lines; see RebuildAccountCaches.
	CurrentBalance decimal.Decimal

	Description string
	CreatedAt   time.Time
}

// =============================================================================
// JOURNAL ENTRY
// =============================================================================

type JournalEntry struct {
	ID              EntryID
	Number          string
	Date            Date
	TransactionType TransactionType
	ReferenceType   ReferenceType
	ReferenceID     int64
	Description     string
	TotalDebit      decimal.Decimal
	TotalCredit     decimal.Decimal
	IsPosted        bool

	// Audit fields
	CreatedBy string
	CreatedAt time.Time

	Lines []Line
}

// Line is one side of a posting. Exactly one of Debit/Credit is positive.
type Line struct {
	ID          int64
	EntryID     EntryID
	AccountID   AccountID
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	LineNumber  int
}

// EntryDraft is an entry not yet written. Composers build these.
type EntryDraft struct {
	Date            Date
	TransactionType TransactionType
	ReferenceType   ReferenceType
	ReferenceID     int64
	Description     string
	Lines           []LineDraft

	// Unposted drafts are kept in the log but ignored by balances.
	Unposted  bool
	CreatedBy string
}

type LineDraft struct {
	AccountID   AccountID
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// Debit builds a debit line.
func Debit(account AccountID, amount decimal.Decimal, description string) LineDraft {
	return LineDraft{AccountID: account, Debit: amount, Credit: decimal.Zero, Description: description}
}

// Credit builds a credit line.
func Credit(account AccountID, amount decimal.Decimal, description string) LineDraft {
	return LineDraft{AccountID: account, Debit: decimal.Zero, Credit: amount, Description: description}
}

// Signed builds a debit line for a positive amount and a credit line for a
// negative one. The second result is false when amount is zero.
func Signed(account AccountID, amount decimal.Decimal, description string) (LineDraft, bool) {
	switch {
	case amount.IsPositive():
		return Debit(account, amount, description), true
	case amount.IsNegative():
		return Credit(account, amount.Neg(), description), true
	}
	return LineDraft{}, false
}

// Totals returns the debit and credit sums of the draft's lines.
func (d EntryDraft) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range d.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// PostedLine is a line joined with the header fields replay needs.
type PostedLine struct {
	Line
	EntryNumber     string
	EntryDate       Date
	TransactionType TransactionType
	EntryDesc       string
}
