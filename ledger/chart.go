package ledger

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// CHART ROLES - Well-known accounts, resolved once per tenant
// =============================================================================

// Role names an account the composers and reports need by function rather
// than by code.
type Role string

const (
	RoleCash             Role = "cash"
	RoleBank             Role = "bank"
	RoleReceivable       Role = "receivable"
	RoleInventory        Role = "inventory"
	RoleAdvanceTax       Role = "advance_tax_receivable"
	RolePayable          Role = "payable"
	RoleTaxPayable       Role = "tax_payable"
	RoleCapital          Role = "capital"
	RoleRetainedEarnings Role = "retained_earnings"
	RoleSalesRevenue     Role = "sales_revenue"
	RoleOtherIncome      Role = "other_income"
	RoleCOGS             Role = "cogs"
	RoleDiscount         Role = "discount_allowed"
	RoleOtherExpense     Role = "other_expense"
)

// DefaultRoleCodes maps each role to the account code of the standard chart.
var DefaultRoleCodes = map[Role]string{
	RoleCash:             "1000",
	RoleBank:             "1100",
	RoleReceivable:       "1200",
	RoleInventory:        "1300",
	RoleAdvanceTax:       "1450",
	RolePayable:          "2000",
	RoleTaxPayable:       "2200",
	RoleCapital:          "3000",
	RoleRetainedEarnings: "3100",
	RoleSalesRevenue:     "4000",
	RoleOtherIncome:      "4100",
	RoleCOGS:             "5000",
	RoleDiscount:         "5400",
	RoleOtherExpense:     "5500",
}

// Chart holds resolved handles for every role. A Chart only exists if every
// role resolved, so composers never look accounts up per transaction.
type Chart struct {
	accounts map[Role]Account
}

// ResolveChart looks up every role once. Any missing code fails with a
// MissingAccountsError naming all of them.
func ResolveChart(ctx context.Context, store AccountStore, codes map[Role]string) (*Chart, error) {
	if codes == nil {
		codes = DefaultRoleCodes
	}
	chart := &Chart{accounts: make(map[Role]Account, len(codes))}
	missing := make(map[Role]string)

	for role, code := range codes {
		acct, err := store.GetAccountByCode(ctx, code)
		if err != nil {
			if IsNotFound(err) {
				missing[role] = code
				continue
			}
			return nil, fmt.Errorf("resolve %s: %w", role, err)
		}
		chart.accounts[role] = *acct
	}
	for role, code := range DefaultRoleCodes {
		if _, ok := codes[role]; !ok {
			missing[role] = code
		}
	}
	if len(missing) > 0 {
		return nil, &MissingAccountsError{Missing: missing}
	}
	return chart, nil
}

// ID returns the account id for a role.
func (c *Chart) ID(role Role) AccountID { return c.accounts[role].ID }

// Account returns the resolved account for a role.
func (c *Chart) Account(role Role) Account { return c.accounts[role] }

// IsMissingAccounts reports whether err is a chart configuration failure.
func IsMissingAccounts(err error) bool {
	var m *MissingAccountsError
	return errors.As(err, &m)
}
