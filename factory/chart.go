/*
Package factory provides YAML to Go chart-of-accounts conversion.

PURPOSE:
  Converts chart-of-accounts definitions into ledger accounts and a role
  binding. A tenant's chart can then be changed without code changes: the
  accountant edits a YAML file, the factory validates it and seeds the
  tenant's registry.

YAML SCHEMA:
  name: standard-retail
  accounts:
    - {code: "1", name: Assets, type: Asset}
    - {code: "1000", name: Cash, type: Asset, parent: "1"}
    - code: "1450"
      name: Advance Tax Receivable
      type: Asset
      parent: "1"
      opening_balance: "0.00"
  roles:
    bank: "1110"     # rebind a role to another code

KEY FEATURES:
  - Validates codes, types and parents before anything is written
  - Orders accounts so parents are created before children
  - Seeding is idempotent: codes that already exist are skipped
  - Role overrides are merged over ledger.DefaultRoleCodes

USAGE:
  f := factory.NewChartFactory()
  def, err := f.Default()               // embedded standard chart
  def, err := f.LoadFile("chart.yaml")  // or a tenant-specific file

  created, err := f.Seed(ctx, registry, def)
  chart, err := ledger.ResolveChart(ctx, store, def.RoleCodes())

SEE ALSO:
  - ledger/registry.go: CreateAccount
  - ledger/chart.go: Role, ResolveChart
  - tenant/tenant.go: seeds on first open
*/
package factory

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/ledger-engine/ledger"
)

//go:embed default_chart.yaml
var DefaultChartYAML []byte

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

// ChartDefinition is the YAML representation of a chart of accounts.
type ChartDefinition struct {
	Name     string              `yaml:"name"`
	Accounts []AccountDefinition `yaml:"accounts" validate:"required,min=1,dive"`
	Roles    map[string]string   `yaml:"roles,omitempty" validate:"dive,keys,required,endkeys,required"`
}

// AccountDefinition is one account in a ChartDefinition.
type AccountDefinition struct {
	Code           string `yaml:"code" validate:"required,max=20"`
	Name           string `yaml:"name" validate:"required,max=120"`
	Type           string `yaml:"type" validate:"required,oneof=Asset Liability Equity Revenue Expense"`
	Parent         string `yaml:"parent,omitempty" validate:"omitempty,max=20,nefield=Code"`
	OpeningBalance string `yaml:"opening_balance,omitempty" validate:"omitempty,numeric"`
	Description    string `yaml:"description,omitempty"`
}

// =============================================================================
// CHART FACTORY
// =============================================================================

// ChartFactory parses and seeds charts of accounts.
type ChartFactory struct {
	validate *validator.Validate
}

// NewChartFactory creates a new chart factory.
func NewChartFactory() *ChartFactory {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &ChartFactory{validate: v}
}

// Default returns the embedded standard chart.
func (f *ChartFactory) Default() (*ChartDefinition, error) {
	return f.ParseChart(DefaultChartYAML)
}

// LoadFile reads and parses a chart definition file.
func (f *ChartFactory) LoadFile(path string) (*ChartDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chart file: %w", err)
	}
	return f.ParseChart(data)
}

// ParseChart parses and validates a YAML chart definition. On success the
// accounts are ordered parents-first.
func (f *ChartFactory) ParseChart(data []byte) (*ChartDefinition, error) {
	var def ChartDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid chart YAML: %w", err)
	}
	for i := range def.Accounts {
		a := &def.Accounts[i]
		a.Code = strings.TrimSpace(a.Code)
		a.Name = strings.TrimSpace(a.Name)
		a.Parent = strings.TrimSpace(a.Parent)
		a.OpeningBalance = strings.TrimSpace(a.OpeningBalance)
		if t, err := parseType(a.Type); err == nil {
			a.Type = string(t)
		}
	}
	if err := f.validate.Struct(&def); err != nil {
		return nil, describe(def.Name, err)
	}

	// Checks below span records or need the ledger's money rules.
	byCode := make(map[string]*AccountDefinition, len(def.Accounts))
	for i := range def.Accounts {
		a := &def.Accounts[i]
		if _, err := parseOpening(a.OpeningBalance); err != nil {
			return nil, fmt.Errorf("account %s: %w", a.Code, err)
		}
		if _, dup := byCode[a.Code]; dup {
			return nil, fmt.Errorf("account %s: duplicate code", a.Code)
		}
		byCode[a.Code] = a
	}

	for _, a := range def.Accounts {
		if a.Parent == "" {
			continue
		}
		p, ok := byCode[a.Parent]
		if !ok {
			return nil, fmt.Errorf("account %s: parent %s is not defined", a.Code, a.Parent)
		}
		if p.Type != a.Type {
			return nil, fmt.Errorf("account %s: parent %s has type %s, want %s", a.Code, p.Code, p.Type, a.Type)
		}
	}

	for role := range def.Roles {
		if _, ok := ledger.DefaultRoleCodes[ledger.Role(role)]; !ok {
			return nil, fmt.Errorf("unknown role %q", role)
		}
	}

	ordered, err := parentsFirst(def.Accounts, byCode)
	if err != nil {
		return nil, err
	}
	def.Accounts = ordered
	return &def, nil
}

// RoleCodes returns ledger.DefaultRoleCodes with this chart's overrides.
func (d *ChartDefinition) RoleCodes() map[ledger.Role]string {
	codes := make(map[ledger.Role]string, len(ledger.DefaultRoleCodes))
	for role, code := range ledger.DefaultRoleCodes {
		codes[role] = code
	}
	for role, code := range d.Roles {
		codes[ledger.Role(role)] = code
	}
	return codes
}

// Seed creates every account of def that the registry does not already
// have. It returns the number of accounts created.
func (f *ChartFactory) Seed(ctx context.Context, reg *ledger.Registry, def *ChartDefinition) (int, error) {
	created := 0
	for _, a := range def.Accounts {
		_, err := reg.GetAccountByCode(ctx, a.Code)
		if err == nil {
			continue
		}
		if !ledger.IsNotFound(err) {
			return created, err
		}

		t, _ := parseType(a.Type)
		opening, _ := parseOpening(a.OpeningBalance)
		if _, err := reg.CreateAccount(ctx, ledger.NewAccount{
			Code:           a.Code,
			Name:           a.Name,
			Type:           t,
			ParentCode:     a.Parent,
			OpeningBalance: opening,
			Description:    a.Description,
		}); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// describe flattens validator errors into one message naming every bad
// field, e.g. `accounts[2].type: oneof=Asset ... "Assets"`.
func describe(chart string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid chart %q: %w", chart, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		msg := field + ": " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		if v, ok := fe.Value().(string); ok && v != "" {
			msg += fmt.Sprintf(" %q", v)
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid chart %q: %s", chart, strings.Join(msgs, "; "))
}

func parseType(s string) (ledger.AccountType, error) {
	for _, t := range ledger.AccountTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

func parseOpening(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid opening_balance %q", s)
	}
	if !ledger.IsMoney(d) {
		return decimal.Zero, fmt.Errorf("opening_balance %s has more than %d decimals", s, ledger.MoneyPlaces)
	}
	return d, nil
}

// parentsFirst orders accounts by depth, keeping file order within a depth.
func parentsFirst(accounts []AccountDefinition, byCode map[string]*AccountDefinition) ([]AccountDefinition, error) {
	depth := make(map[string]int, len(accounts))
	var walk func(code string, seen map[string]bool) (int, error)
	walk = func(code string, seen map[string]bool) (int, error) {
		if d, ok := depth[code]; ok {
			return d, nil
		}
		if seen[code] {
			return 0, fmt.Errorf("account %s: parent cycle", code)
		}
		seen[code] = true
		a := byCode[code]
		d := 0
		if a.Parent != "" {
			pd, err := walk(a.Parent, seen)
			if err != nil {
				return 0, err
			}
			d = pd + 1
		}
		depth[code] = d
		return d, nil
	}

	maxDepth := 0
	for _, a := range accounts {
		d, err := walk(a.Code, map[string]bool{})
		if err != nil {
			return nil, err
		}
		if d > maxDepth {
			maxDepth = d
		}
	}

	ordered := make([]AccountDefinition, 0, len(accounts))
	for d := 0; d <= maxDepth; d++ {
		for _, a := range accounts {
			if depth[a.Code] == d {
				ordered = append(ordered, a)
			}
		}
	}
	return ordered, nil
}
