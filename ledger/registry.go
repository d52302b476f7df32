package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT REGISTRY - Chart of accounts
// =============================================================================

// Registry manages the chart of accounts. Accounts are created at tenant
// seed or by an admin, deactivated when retired, and never deleted.
type Registry struct {
	store AccountStore
}

func NewRegistry(store AccountStore) *Registry {
	return &Registry{store: store}
}

// NewAccount describes an account to create.
type NewAccount struct {
	Code           string
	Name           string
	Type           AccountType
	ParentCode     string
	OpeningBalance decimal.Decimal
	Description    string
}

// CreateAccount validates and inserts an account.
func (r *Registry) CreateAccount(ctx context.Context, in NewAccount) (*Account, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, invalid(CodeBadAccount, "account code is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid(CodeBadAccount, "account name is required")
	}
	if !in.Type.Valid() {
		return nil, invalid(CodeBadType, "unknown account type %q", in.Type)
	}
	if !IsMoney(in.OpeningBalance) {
		return nil, invalid(CodePrecision, "opening balance %s has more than %d decimals", in.OpeningBalance, MoneyPlaces)
	}

	acct := &Account{
		Code:           code,
		Name:           strings.TrimSpace(in.Name),
		Type:           in.Type,
		IsActive:       true,
		OpeningBalance: in.OpeningBalance,
		CurrentBalance: in.OpeningBalance,
		Description:    in.Description,
		CreatedAt:      time.Now().UTC(),
	}

	if in.ParentCode != "" {
		parent, err := r.store.GetAccountByCode(ctx, in.ParentCode)
		if err != nil {
			return nil, err
		}
		if parent.Type != in.Type {
			return nil, invalid(CodeBadAccount, "parent %s is %s, child %s is %s", parent.Code, parent.Type, code, in.Type)
		}
		acct.ParentID = &parent.ID
	}

	if err := r.store.CreateAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("create account %s: %w", code, err)
	}
	return acct, nil
}

func (r *Registry) GetAccount(ctx context.Context, id AccountID) (*Account, error) {
	return r.store.GetAccount(ctx, id)
}

// GetAccountByCode returns the account or a ReferenceError.
func (r *Registry) GetAccountByCode(ctx context.Context, code string) (*Account, error) {
	return r.store.GetAccountByCode(ctx, code)
}

func (r *Registry) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	return r.store.ListAccounts(ctx, filter)
}

// Deactivate retires an account so it takes no new lines. Reports keep
// showing it for as long as it carries a balance or moves in the period.
func (r *Registry) Deactivate(ctx context.Context, id AccountID) error {
	if _, err := r.store.GetAccount(ctx, id); err != nil {
		return err
	}
	return r.store.SetAccountActive(ctx, id, false)
}

func (r *Registry) Activate(ctx context.Context, id AccountID) error {
	if _, err := r.store.GetAccount(ctx, id); err != nil {
		return err
	}
	return r.store.SetAccountActive(ctx, id, true)
}
