package compose

import (
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// CashSessionClose is a till being counted at the end of a session.
type CashSessionClose struct {
	SessionID     int64
	SessionNumber string
	Date          ledger.Date
	Expected      decimal.Decimal
	Counted       decimal.Decimal
	CreatedBy     string
}

// Variance is counted minus expected, at posting precision.
func (s CashSessionClose) Variance() decimal.Decimal {
	return ledger.Round2(s.Counted.Sub(s.Expected))
}

// CashVariance composes the over/short entry for a session close:
//
//	over  (variance > 0):  Dr Cash / Cr Other Income
//	short (variance < 0):  Dr Other Expense / Cr Cash
//
// A zero variance yields an empty Posting.
func (c *Composer) CashVariance(s CashSessionClose) Posting {
	event := "cash session " + s.SessionNumber
	v := s.Variance()
	if v.IsZero() {
		return Posting{Event: event}
	}

	amount := v.Abs()
	cash := c.chart.ID(ledger.RoleCash)
	var ls []ledger.LineDraft
	if v.IsPositive() {
		ls = []ledger.LineDraft{
			ledger.Debit(cash, amount, "Cash over"),
			ledger.Credit(c.chart.ID(ledger.RoleOtherIncome), amount, "Cash over"),
		}
	} else {
		ls = []ledger.LineDraft{
			ledger.Debit(c.chart.ID(ledger.RoleOtherExpense), amount, "Cash short"),
			ledger.Credit(cash, amount, "Cash short"),
		}
	}
	return Posting{
		Event: event,
		Entries: []PlannedEntry{{
			Draft: ledger.EntryDraft{
				Date:            s.Date,
				TransactionType: ledger.TxAdjustment,
				ReferenceType:   ledger.RefCashSession,
				ReferenceID:     s.SessionID,
				Description:     "Cash variance for session " + s.SessionNumber,
				Lines:           ls,
				CreatedBy:       s.CreatedBy,
			},
		}},
	}
}
