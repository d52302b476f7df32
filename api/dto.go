/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Money is decimal.Decimal on both sides. Requests accept a JSON number or
  a quoted string; responses always emit a quoted string so no client
  parses money as a float.

VALIDATION:
  Request structs carry go-playground/validator tags. Shape is checked in
  decode(); bookkeeping rules (balance, precision, active accounts) are
  checked by the ledger and come back as 400 validation errors.

SEE ALSO:
  - handlers.go: Uses these types
  - report/: report bodies are served as-is
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/compose"
	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	ParentID       *int64          `json:"parent_id,omitempty"`
	IsActive       bool            `json:"is_active"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
}

// CreateAccountRequest is the request to add an account to the chart.
type CreateAccountRequest struct {
	Code           string          `json:"code" validate:"required,max=20"`
	Name           string          `json:"name" validate:"required,max=100"`
	Type           string          `json:"type" validate:"required,oneof=Asset Liability Equity Revenue Expense"`
	ParentCode     string          `json:"parent_code,omitempty" validate:"omitempty,max=20"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Description    string          `json:"description,omitempty" validate:"max=500"`
}

// BalanceDTO is one account's balance at a date.
type BalanceDTO struct {
	AccountID     int64           `json:"account_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	AsOf          string          `json:"as_of"`
	Balance       decimal.Decimal `json:"balance"`
	CachedBalance decimal.Decimal `json:"cached_balance"`
}

func toAccountDTO(a ledger.Account) AccountDTO {
	dto := AccountDTO{
		ID:             int64(a.ID),
		Code:           a.Code,
		Name:           a.Name,
		Type:           string(a.Type),
		IsActive:       a.IsActive,
		OpeningBalance: a.OpeningBalance,
		CurrentBalance: a.CurrentBalance,
		Description:    a.Description,
	}
	if a.ParentID != nil {
		p := int64(*a.ParentID)
		dto.ParentID = &p
	}
	if !a.CreatedAt.IsZero() {
		dto.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// JOURNAL ENTRIES
// =============================================================================

// EntryDTO represents a journal entry with its lines.
type EntryDTO struct {
	ID              int64           `json:"id"`
	EntryNumber     string          `json:"entry_number"`
	Date            string          `json:"date"`
	TransactionType string          `json:"transaction_type"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	ReferenceID     int64           `json:"reference_id,omitempty"`
	Description     string          `json:"description"`
	TotalDebit      decimal.Decimal `json:"total_debit"`
	TotalCredit     decimal.Decimal `json:"total_credit"`
	IsPosted        bool            `json:"is_posted"`
	CreatedBy       string          `json:"created_by,omitempty"`
	CreatedAt       string          `json:"created_at,omitempty"`
	Lines           []LineDTO       `json:"lines"`
}

// LineDTO is one side of an entry.
type LineDTO struct {
	LineNumber  int             `json:"line_number"`
	AccountID   int64           `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// CreateEntryRequest is a manual journal entry.
type CreateEntryRequest struct {
	Date            string             `json:"date" validate:"required,datetime=2006-01-02"`
	TransactionType string             `json:"transaction_type" validate:"required,oneof=Sale Purchase Payment Receipt Adjustment Opening Closing"`
	ReferenceType   string             `json:"reference_type,omitempty"`
	ReferenceID     int64              `json:"reference_id,omitempty" validate:"gte=0"`
	Description     string             `json:"description" validate:"max=500"`
	Draft           bool               `json:"draft,omitempty"`
	CreatedBy       string             `json:"created_by,omitempty"`
	Lines           []EntryLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type EntryLineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// ReverseEntryRequest dates and describes the mirror entry.
type ReverseEntryRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description,omitempty" validate:"max=500"`
	CreatedBy   string `json:"created_by,omitempty"`
}

func toEntryDTO(e ledger.JournalEntry) EntryDTO {
	dto := EntryDTO{
		ID:              int64(e.ID),
		EntryNumber:     e.Number,
		Date:            e.Date.String(),
		TransactionType: string(e.TransactionType),
		ReferenceType:   string(e.ReferenceType),
		ReferenceID:     e.ReferenceID,
		Description:     e.Description,
		TotalDebit:      e.TotalDebit,
		TotalCredit:     e.TotalCredit,
		IsPosted:        e.IsPosted,
		CreatedBy:       e.CreatedBy,
		Lines:           make([]LineDTO, len(e.Lines)),
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	for i, l := range e.Lines {
		dto.Lines[i] = LineDTO{
			LineNumber:  l.LineNumber,
			AccountID:   int64(l.AccountID),
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		}
	}
	return dto
}

// =============================================================================
// COUNTERPARTIES & SUBSIDIARY LEDGERS
// =============================================================================

type CounterpartyDTO struct {
	ID            int64           `json:"id"`
	Kind          string          `json:"kind"`
	Name          string          `json:"name"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
}

// CreateCounterpartyRequest registers a supplier/customer in the tenant.
type CreateCounterpartyRequest struct {
	ID   int64  `json:"id" validate:"required,gt=0"`
	Name string `json:"name" validate:"required,max=200"`
}

// LedgerRowDTO is one subsidiary ledger row.
type LedgerRowDTO struct {
	ID              int64           `json:"id"`
	EntityID        int64           `json:"entity_id"`
	EntryID         int64           `json:"entry_id"`
	Date            string          `json:"date"`
	TransactionType string          `json:"transaction_type"`
	Reference       string          `json:"reference"`
	Description     string          `json:"description"`
	Debit           decimal.Decimal `json:"debit"`
	Credit          decimal.Decimal `json:"credit"`
	Balance         decimal.Decimal `json:"balance"`
}

// StatementDTO is a counterparty's rows over a range.
type StatementDTO struct {
	Kind           string          `json:"kind"`
	EntityID       int64           `json:"entity_id"`
	Name           string          `json:"name"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Rows           []LedgerRowDTO  `json:"rows"`
}

// EntityAgingDTO is one counterparty's aging.
type EntityAgingDTO struct {
	Kind        string `json:"kind"`
	EntityID    int64  `json:"entity_id"`
	AsOf        string `json:"as_of"`
	Outstanding bool   `json:"outstanding"`
	ledger.AgingBuckets
}

func toCounterpartyDTO(c ledger.Counterparty) CounterpartyDTO {
	return CounterpartyDTO{
		ID:            int64(c.ID),
		Kind:          string(c.Kind),
		Name:          c.Name,
		LedgerBalance: c.LedgerBalance,
	}
}

func toLedgerRowDTO(r ledger.LedgerRow) LedgerRowDTO {
	return LedgerRowDTO{
		ID:              r.ID,
		EntityID:        int64(r.EntityID),
		EntryID:         int64(r.EntryID),
		Date:            r.Date.String(),
		TransactionType: string(r.Type),
		Reference:       r.Reference,
		Description:     r.Description,
		Debit:           r.Debit,
		Credit:          r.Credit,
		Balance:         r.Balance,
	}
}

func toLedgerRowDTOs(rows []ledger.LedgerRow) []LedgerRowDTO {
	dtos := make([]LedgerRowDTO, len(rows))
	for i, r := range rows {
		dtos[i] = toLedgerRowDTO(r)
	}
	return dtos
}

func toStatementDTO(s *ledger.Statement) StatementDTO {
	return StatementDTO{
		Kind:           string(s.Kind),
		EntityID:       int64(s.EntityID),
		Name:           s.Name,
		From:           s.From.String(),
		To:             s.To.String(),
		OpeningBalance: s.OpeningBalance,
		ClosingBalance: s.ClosingBalance,
		Rows:           toLedgerRowDTOs(s.Rows),
	}
}

// =============================================================================
// BUSINESS EVENTS
// =============================================================================

// SaleRequest is a finalized invoice (sale, return, or exchange).
type SaleRequest struct {
	InvoiceID     int64             `json:"invoice_id" validate:"required,gt=0"`
	InvoiceNumber string            `json:"invoice_number" validate:"required,max=50"`
	Date          string            `json:"date" validate:"required,datetime=2006-01-02"`
	CustomerID    int64             `json:"customer_id,omitempty" validate:"gte=0"`
	PaymentMethod string            `json:"payment_method" validate:"required,oneof=Cash Card Bank Credit"`
	NetTotal      decimal.Decimal   `json:"net_total"`
	TaxAmount     decimal.Decimal   `json:"tax_amount"`
	Discount      decimal.Decimal   `json:"discount_amount"`
	Items         []SaleItemRequest `json:"items" validate:"dive"`
	CreatedBy     string            `json:"created_by,omitempty"`
}

// SaleItemRequest is one invoice line; quantity is negative for returns.
type SaleItemRequest struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	BatchID   int64            `json:"batch_id,omitempty" validate:"gte=0"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
}

func (req SaleRequest) toSale(date ledger.Date) compose.Sale {
	s := compose.Sale{
		InvoiceID:     req.InvoiceID,
		InvoiceNumber: req.InvoiceNumber,
		Date:          date,
		CustomerID:    ledger.EntityID(req.CustomerID),
		Method:        compose.PaymentMethod(req.PaymentMethod),
		NetTotal:      req.NetTotal,
		TaxAmount:     req.TaxAmount,
		Discount:      req.Discount,
		CreatedBy:     req.CreatedBy,
	}
	for _, it := range req.Items {
		s.Items = append(s.Items, compose.SaleItem{
			ProductID: it.ProductID,
			BatchID:   it.BatchID,
			Quantity:  it.Quantity,
			UnitCost:  it.UnitCost,
		})
	}
	return s
}

// PurchaseRequest is a finalized goods received note. Items, when given,
// feed the weighted-average cost book.
type PurchaseRequest struct {
	GRNID       int64                 `json:"grn_id" validate:"required,gt=0"`
	GRNNumber   string                `json:"grn_number" validate:"required,max=50"`
	Date        string                `json:"date" validate:"required,datetime=2006-01-02"`
	SupplierID  int64                 `json:"supplier_id" validate:"required,gt=0"`
	SubTotal    decimal.Decimal       `json:"sub_total"`
	Discount    decimal.Decimal       `json:"discount_amount"`
	Loading     decimal.Decimal       `json:"loading_expense"`
	Freight     decimal.Decimal       `json:"freight_expense"`
	Other       decimal.Decimal       `json:"other_expense"`
	PurchaseTax decimal.Decimal       `json:"purchase_tax"`
	AdvanceTax  decimal.Decimal       `json:"advance_tax"`
	NetTotal    decimal.Decimal       `json:"net_total"`
	PaymentMode string                `json:"payment_mode" validate:"required,oneof=Cash Bank Credit"`
	Items       []PurchaseItemRequest `json:"items,omitempty" validate:"dive"`
	CreatedBy   string                `json:"created_by,omitempty"`
}

type PurchaseItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

func (req PurchaseRequest) toGRN(date ledger.Date) compose.GRN {
	return compose.GRN{
		GRNID:       req.GRNID,
		GRNNumber:   req.GRNNumber,
		Date:        date,
		SupplierID:  ledger.EntityID(req.SupplierID),
		SubTotal:    req.SubTotal,
		Discount:    req.Discount,
		Loading:     req.Loading,
		Freight:     req.Freight,
		Other:       req.Other,
		PurchaseTax: req.PurchaseTax,
		AdvanceTax:  req.AdvanceTax,
		NetTotal:    req.NetTotal,
		Mode:        compose.PaymentMode(req.PaymentMode),
		CreatedBy:   req.CreatedBy,
	}
}

// AdjustmentRequest is a finalized stock adjustment.
type AdjustmentRequest struct {
	AdjustmentID int64            `json:"adjustment_id" validate:"required,gt=0"`
	Date         string           `json:"date" validate:"required,datetime=2006-01-02"`
	Type         string           `json:"adjustment_type" validate:"required,oneof=return_to_supplier damage expiry count_correction"`
	SupplierID   int64            `json:"supplier_id,omitempty" validate:"gte=0"`
	ProductID    int64            `json:"product_id" validate:"required,gt=0"`
	BatchID      int64            `json:"batch_id,omitempty" validate:"gte=0"`
	BatchNumber  string           `json:"batch_number,omitempty"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitCost     *decimal.Decimal `json:"unit_cost,omitempty"`
	CreatedBy    string           `json:"created_by,omitempty"`
}

func (req AdjustmentRequest) toAdjustment(date ledger.Date) compose.Adjustment {
	return compose.Adjustment{
		AdjustmentID: req.AdjustmentID,
		Date:         date,
		Type:         compose.AdjustmentType(req.Type),
		SupplierID:   ledger.EntityID(req.SupplierID),
		ProductID:    req.ProductID,
		BatchID:      req.BatchID,
		BatchNumber:  req.BatchNumber,
		Quantity:     req.Quantity,
		UnitCost:     req.UnitCost,
		CreatedBy:    req.CreatedBy,
	}
}

// CashVarianceRequest is a closed cash session.
type CashVarianceRequest struct {
	SessionID     int64           `json:"session_id" validate:"required,gt=0"`
	SessionNumber string          `json:"session_number" validate:"required,max=50"`
	Date          string          `json:"date" validate:"required,datetime=2006-01-02"`
	Expected      decimal.Decimal `json:"expected_cash"`
	Counted       decimal.Decimal `json:"closing_cash"`
	CreatedBy     string          `json:"created_by,omitempty"`
}

// VoucherRequest is a payment or receipt voucher. AccountID zero means cash.
type VoucherRequest struct {
	VoucherID   int64           `json:"voucher_id" validate:"required,gt=0"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	PartyType   string          `json:"party_type" validate:"required,oneof=Supplier Employee Customer Other"`
	PartyID     int64           `json:"party_id,omitempty" validate:"gte=0"`
	PartyName   string          `json:"party_name,omitempty" validate:"max=200"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   int64           `json:"account_id,omitempty" validate:"gte=0"`
	Description string          `json:"description,omitempty" validate:"max=500"`
	CreatedBy   string          `json:"created_by,omitempty"`
}

func (req VoucherRequest) toVoucher(date ledger.Date) compose.Voucher {
	return compose.Voucher{
		VoucherID:   req.VoucherID,
		Date:        date,
		PartyType:   compose.PartyType(req.PartyType),
		PartyID:     ledger.EntityID(req.PartyID),
		PartyName:   req.PartyName,
		Amount:      req.Amount,
		AccountID:   ledger.AccountID(req.AccountID),
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
	}
}

// PostingDTO is what one business event wrote. An event with no ledger
// effect returns empty lists.
type PostingDTO struct {
	Event   string         `json:"event"`
	Voucher string         `json:"voucher_number,omitempty"`
	Entries []EntryDTO     `json:"entries"`
	Rows    []LedgerRowDTO `json:"ledger_rows"`
}

func toPostingDTO(event string, res *compose.Result) PostingDTO {
	dto := PostingDTO{
		Event:   event,
		Voucher: res.Voucher,
		Entries: make([]EntryDTO, len(res.Entries)),
		Rows:    toLedgerRowDTOs(res.Rows),
	}
	for i, e := range res.Entries {
		dto.Entries[i] = toEntryDTO(e)
	}
	return dto
}

// =============================================================================
// ADMIN & ERRORS
// =============================================================================

type CacheDriftDTO struct {
	Kind     string          `json:"kind"`
	ID       int64           `json:"id"`
	Label    string          `json:"label"`
	Cached   decimal.Decimal `json:"cached"`
	Replayed decimal.Decimal `json:"replayed"`
}

type RebuildResponse struct {
	Tenant   string          `json:"tenant"`
	Accounts []CacheDriftDTO `json:"accounts"`
	Entities []CacheDriftDTO `json:"entities"`
}

func toDriftDTOs(ds []ledger.CacheDrift) []CacheDriftDTO {
	dtos := make([]CacheDriftDTO, len(ds))
	for i, d := range ds {
		dtos[i] = CacheDriftDTO{Kind: d.Kind, ID: d.ID, Label: d.Label, Cached: d.Cached, Replayed: d.Replayed}
	}
	return dtos
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
