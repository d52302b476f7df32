package compose

import (
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// PAYMENT & RECEIPT VOUCHERS
// =============================================================================

// PartyType classifies who a voucher pays or receives from.
type PartyType string

const (
	PartySupplier PartyType = "Supplier"
	PartyEmployee PartyType = "Employee"
	PartyCustomer PartyType = "Customer"
	PartyOther    PartyType = "Other"
)

func (p PartyType) Valid() bool {
	switch p {
	case PartySupplier, PartyEmployee, PartyCustomer, PartyOther:
		return true
	}
	return false
}

// Voucher numbers are allocated by the Poster from their own sequences.
const (
	PaymentVoucherPrefix = "PV"
	ReceiptVoucherPrefix = "RV"
)

// Voucher is money moving through a cash or bank account. AccountID is the
// cash/bank account used; zero means the chart's cash account.
type Voucher struct {
	VoucherID   int64
	Date        ledger.Date
	PartyType   PartyType
	PartyID     ledger.EntityID
	PartyName   string
	Amount      decimal.Decimal
	AccountID   ledger.AccountID
	Description string
	CreatedBy   string
}

func (c *Composer) checkVoucher(v Voucher) error {
	if !v.PartyType.Valid() {
		return ledger.Invalid(ledger.CodeBadType, "unknown party type %q", v.PartyType)
	}
	if !v.Amount.IsPositive() {
		return ledger.Invalid(ledger.CodeBadAmount, "voucher amount must be positive")
	}
	return nil
}

func (c *Composer) moneyAccount(v Voucher) ledger.AccountID {
	if v.AccountID != 0 {
		return v.AccountID
	}
	return c.chart.ID(ledger.RoleCash)
}

// PaymentVoucher composes money out. A supplier payee settles the payable
// (and gets a debit row when identified); anyone else is an expense.
func (c *Composer) PaymentVoucher(v Voucher) (Posting, error) {
	if err := c.checkVoucher(v); err != nil {
		return Posting{}, err
	}
	amount := ledger.Round2(v.Amount)
	desc := v.Description
	if desc == "" {
		desc = "Payment to " + partyLabel(v)
	}

	debitTo := c.chart.ID(ledger.RoleOtherExpense)
	if v.PartyType == PartySupplier {
		debitTo = c.chart.ID(ledger.RolePayable)
	}
	planned := PlannedEntry{
		Draft: ledger.EntryDraft{
			Date:            v.Date,
			TransactionType: ledger.TxPayment,
			ReferenceType:   ledger.RefPayment,
			ReferenceID:     v.VoucherID,
			Description:     desc,
			Lines: []ledger.LineDraft{
				ledger.Debit(debitTo, amount, desc),
				ledger.Credit(c.moneyAccount(v), amount, desc),
			},
			CreatedBy: v.CreatedBy,
		},
	}
	if v.PartyType == PartySupplier && v.PartyID != 0 {
		planned.Rows = append(planned.Rows, rowFor(ledger.KindSupplier, v.PartyID, amount, ""))
	}
	return Posting{
		Event:         "payment voucher",
		Entries:       []PlannedEntry{planned},
		VoucherPrefix: PaymentVoucherPrefix,
	}, nil
}

// ReceiptVoucher composes money in. A customer payer settles the
// receivable (and gets a credit row when identified); anyone else is other
// income.
func (c *Composer) ReceiptVoucher(v Voucher) (Posting, error) {
	if err := c.checkVoucher(v); err != nil {
		return Posting{}, err
	}
	amount := ledger.Round2(v.Amount)
	desc := v.Description
	if desc == "" {
		desc = "Receipt from " + partyLabel(v)
	}

	creditTo := c.chart.ID(ledger.RoleOtherIncome)
	if v.PartyType == PartyCustomer {
		creditTo = c.chart.ID(ledger.RoleReceivable)
	}
	planned := PlannedEntry{
		Draft: ledger.EntryDraft{
			Date:            v.Date,
			TransactionType: ledger.TxReceipt,
			ReferenceType:   ledger.RefReceipt,
			ReferenceID:     v.VoucherID,
			Description:     desc,
			Lines: []ledger.LineDraft{
				ledger.Debit(c.moneyAccount(v), amount, desc),
				ledger.Credit(creditTo, amount, desc),
			},
			CreatedBy: v.CreatedBy,
		},
	}
	if v.PartyType == PartyCustomer && v.PartyID != 0 {
		planned.Rows = append(planned.Rows, rowFor(ledger.KindCustomer, v.PartyID, amount.Neg(), ""))
	}
	return Posting{
		Event:         "receipt voucher",
		Entries:       []PlannedEntry{planned},
		VoucherPrefix: ReceiptVoucherPrefix,
	}, nil
}

func partyLabel(v Voucher) string {
	if v.PartyName != "" {
		return v.PartyName
	}
	return string(v.PartyType)
}
