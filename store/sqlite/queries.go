package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn is a ledger.Store bound to either the database or an open
// transaction. Locking is the caller's job.
type conn struct {
	q querier
}

var _ ledger.Store = (*conn)(nil)

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, code, name, account_type, parent_id, is_active,
	opening_balance, current_balance, description, created_at`

func (c *conn) CreateAccount(ctx context.Context, a *ledger.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var parent sql.NullInt64
	if a.ParentID != nil {
		parent = sql.NullInt64{Int64: int64(*a.ParentID), Valid: true}
	}
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO accounts (code, name, account_type, parent_id, is_active,
			opening_balance, current_balance, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Code, a.Name, string(a.Type), parent, boolInt(a.IsActive),
		a.OpeningBalance.String(), a.CurrentBalance.String(),
		nullString(a.Description), a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateAccountCode
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = ledger.AccountID(id)
	return nil
}

func (c *conn) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, int64(id))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("account", id)
	}
	return a, err
}

func (c *conn) GetAccountByCode(ctx context.Context, code string) (*ledger.Account, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = ?`, code)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("account", code)
	}
	return a, err
}

func (c *conn) ListAccounts(ctx context.Context, filter ledger.AccountFilter) ([]ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE 1=1`
	var args []any
	if filter.Type != "" {
		query += ` AND account_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY code`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (c *conn) SetAccountActive(ctx context.Context, id ledger.AccountID, active bool) error {
	res, err := c.q.ExecContext(ctx, `UPDATE accounts SET is_active = ? WHERE id = ?`, boolInt(active), int64(id))
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireAffected(res, ledger.NotFound("account", id))
}

func (c *conn) AddToCachedBalance(ctx context.Context, id ledger.AccountID, delta decimal.Decimal) error {
	a, err := c.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	return c.SetCachedBalance(ctx, id, a.CurrentBalance.Add(delta))
}

func (c *conn) SetCachedBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	res, err := c.q.ExecContext(ctx, `UPDATE accounts SET current_balance = ? WHERE id = ?`, balance.String(), int64(id))
	if err != nil {
		return fmt.Errorf("failed to update cached balance: %w", err)
	}
	return requireAffected(res, ledger.NotFound("account", id))
}

type scanner interface {
	Scan(dest ...any) error
}

// amounts decodes stored decimal columns, keeping the first failure.
type amounts struct {
	what string
	err  error
}

func (a *amounts) parse(s string) decimal.Decimal {
	if a.err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		a.err = fmt.Errorf("corrupt amount %q in %s: %w", s, a.what, err)
		return decimal.Zero
	}
	return d
}

func scanAccount(row scanner) (*ledger.Account, error) {
	var (
		a         ledger.Account
		accType   string
		parent    sql.NullInt64
		active    int
		opening   string
		current   string
		desc      sql.NullString
		createdAt string
	)
	if err := row.Scan(&a.ID, &a.Code, &a.Name, &accType, &parent, &active,
		&opening, &current, &desc, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.Type = ledger.AccountType(accType)
	if parent.Valid {
		p := ledger.AccountID(parent.Int64)
		a.ParentID = &p
	}
	a.IsActive = active == 1
	dec := amounts{what: "account " + a.Code}
	a.OpeningBalance = dec.parse(opening)
	a.CurrentBalance = dec.parse(current)
	if dec.err != nil {
		return nil, dec.err
	}
	a.Description = desc.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (c *conn) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	var seq int64
	err := c.q.QueryRowContext(ctx, `
		INSERT INTO entry_sequences (prefix, year, value) VALUES (?, ?, 1)
		ON CONFLICT (prefix, year) DO UPDATE SET value = value + 1
		RETURNING value`,
		prefix, year,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s/%d: %w", prefix, year, err)
	}
	return seq, nil
}

func (c *conn) InsertEntry(ctx context.Context, e *ledger.JournalEntry) error {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO journal_entries (entry_number, entry_date, transaction_type,
			reference_type, reference_id, description, total_debit, total_credit,
			is_posted, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Number, e.Date.String(), string(e.TransactionType),
		string(e.ReferenceType), e.ReferenceID, nullString(e.Description),
		e.TotalDebit.String(), e.TotalCredit.String(),
		boolInt(e.IsPosted), nullString(e.CreatedBy), e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.IntegrityError{Key: e.Number, Err: err}
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = ledger.EntryID(id)

	for i := range e.Lines {
		l := &e.Lines[i]
		l.EntryID = e.ID
		res, err := c.q.ExecContext(ctx, `
			INSERT INTO journal_entry_lines (entry_id, account_id, debit_amount,
				credit_amount, description, line_number)
			VALUES (?, ?, ?, ?, ?, ?)`,
			int64(e.ID), int64(l.AccountID), l.Debit.String(), l.Credit.String(),
			nullString(l.Description), l.LineNumber,
		)
		if err != nil {
			return fmt.Errorf("failed to insert line %d: %w", l.LineNumber, err)
		}
		if l.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

const entryColumns = `id, entry_number, entry_date, transaction_type, reference_type,
	reference_id, description, total_debit, total_credit, is_posted, created_by, created_at`

func (c *conn) GetEntry(ctx context.Context, id ledger.EntryID) (*ledger.JournalEntry, error) {
	entries, err := c.loadEntries(ctx, `id = ?`, []any{int64(id)})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ledger.NotFound("entry", id)
	}
	return &entries[0], nil
}

func (c *conn) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	where, args := entryWhere(filter)
	return c.loadEntries(ctx, where, args)
}

func entryWhere(f ledger.EntryFilter) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.From != nil {
		clauses = append(clauses, "entry_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		clauses = append(clauses, "entry_date <= ?")
		args = append(args, f.To.String())
	}
	if f.TransactionType != "" {
		clauses = append(clauses, "transaction_type = ?")
		args = append(args, string(f.TransactionType))
	}
	if f.ReferenceType != "" {
		clauses = append(clauses, "reference_type = ?")
		args = append(args, string(f.ReferenceType))
	}
	if f.ReferenceID != nil {
		clauses = append(clauses, "reference_id = ?")
		args = append(args, *f.ReferenceID)
	}
	if f.PostedOnly {
		clauses = append(clauses, "is_posted = 1")
	}
	return strings.Join(clauses, " AND "), args
}

// loadEntries reads headers, closes the cursor, then attaches lines. The
// pool has one connection, so two cursors may never be open at once.
func (c *conn) loadEntries(ctx context.Context, where string, args []any) ([]ledger.JournalEntry, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE `+where+` ORDER BY entry_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	var entries []ledger.JournalEntry
	index := make(map[ledger.EntryID]int)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(entries) == 0 {
		return nil, nil
	}

	lines, err := c.q.QueryContext(ctx, `
		SELECT id, entry_id, account_id, debit_amount, credit_amount, description, line_number
		FROM journal_entry_lines
		WHERE entry_id IN (SELECT id FROM journal_entries WHERE `+where+`)
		ORDER BY entry_id, line_number`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer lines.Close()
	for lines.Next() {
		l, err := scanLine(lines)
		if err != nil {
			return nil, err
		}
		if i, ok := index[l.EntryID]; ok {
			entries[i].Lines = append(entries[i].Lines, l)
		}
	}
	return entries, lines.Err()
}

func scanEntry(row scanner) (ledger.JournalEntry, error) {
	var (
		e         ledger.JournalEntry
		date      string
		txType    string
		refType   string
		desc      sql.NullString
		debit     string
		credit    string
		posted    int
		createdBy sql.NullString
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.Number, &date, &txType, &refType, &e.ReferenceID,
		&desc, &debit, &credit, &posted, &createdBy, &createdAt); err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}
	d, err := ledger.ParseDate(date)
	if err != nil {
		return e, err
	}
	e.Date = d
	e.TransactionType = ledger.TransactionType(txType)
	e.ReferenceType = ledger.ReferenceType(refType)
	e.Description = desc.String
	dec := amounts{what: "entry " + e.Number}
	e.TotalDebit = dec.parse(debit)
	e.TotalCredit = dec.parse(credit)
	if dec.err != nil {
		return e, dec.err
	}
	e.IsPosted = posted == 1
	e.CreatedBy = createdBy.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return e, nil
}

func scanLine(row scanner) (ledger.Line, error) {
	var (
		l      ledger.Line
		debit  string
		credit string
		desc   sql.NullString
	)
	if err := row.Scan(&l.ID, &l.EntryID, &l.AccountID, &debit, &credit, &desc, &l.LineNumber); err != nil {
		return l, fmt.Errorf("failed to scan line: %w", err)
	}
	dec := amounts{what: fmt.Sprintf("line %d", l.ID)}
	l.Debit = dec.parse(debit)
	l.Credit = dec.parse(credit)
	if dec.err != nil {
		return l, dec.err
	}
	l.Description = desc.String
	return l, nil
}

func (c *conn) sumLines(ctx context.Context, id ledger.AccountID, cond string, args ...any) (decimal.Decimal, decimal.Decimal, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT l.debit_amount, l.credit_amount
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE l.account_id = ? AND e.is_posted = 1 AND `+cond,
		append([]any{int64(id)}, args...)...)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum lines: %w", err)
	}
	defer rows.Close()

	debit, credit := decimal.Zero, decimal.Zero
	dec := amounts{what: fmt.Sprintf("lines of account %d", id)}
	for rows.Next() {
		var dr, cr string
		if err := rows.Scan(&dr, &cr); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		debit = debit.Add(dec.parse(dr))
		credit = credit.Add(dec.parse(cr))
		if dec.err != nil {
			return decimal.Zero, decimal.Zero, dec.err
		}
	}
	return debit, credit, rows.Err()
}

func (c *conn) AccountTotals(ctx context.Context, id ledger.AccountID, asOf ledger.Date) (decimal.Decimal, decimal.Decimal, error) {
	return c.sumLines(ctx, id, `e.entry_date <= ?`, asOf.String())
}

func (c *conn) PeriodTotals(ctx context.Context, id ledger.AccountID, from, to ledger.Date) (decimal.Decimal, decimal.Decimal, error) {
	return c.sumLines(ctx, id, `e.entry_date >= ? AND e.entry_date <= ?`, from.String(), to.String())
}

func (c *conn) AccountLines(ctx context.Context, id ledger.AccountID, from, to ledger.Date) ([]ledger.PostedLine, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT l.id, l.entry_id, l.account_id, l.debit_amount, l.credit_amount,
		       l.description, l.line_number,
		       e.entry_number, e.entry_date, e.transaction_type, e.description
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE l.account_id = ? AND e.is_posted = 1
		  AND e.entry_date >= ? AND e.entry_date <= ?
		ORDER BY e.entry_date, e.id, l.line_number`,
		int64(id), from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query account lines: %w", err)
	}
	defer rows.Close()

	var result []ledger.PostedLine
	for rows.Next() {
		var (
			pl              ledger.PostedLine
			debit, credit   string
			lineDesc, eDesc sql.NullString
			date, txType    string
		)
		if err := rows.Scan(&pl.ID, &pl.EntryID, &pl.AccountID, &debit, &credit,
			&lineDesc, &pl.LineNumber, &pl.EntryNumber, &date, &txType, &eDesc); err != nil {
			return nil, fmt.Errorf("failed to scan account line: %w", err)
		}
		dec := amounts{what: fmt.Sprintf("line %d", pl.ID)}
		pl.Debit = dec.parse(debit)
		pl.Credit = dec.parse(credit)
		if dec.err != nil {
			return nil, dec.err
		}
		pl.Description = lineDesc.String
		if pl.EntryDate, err = ledger.ParseDate(date); err != nil {
			return nil, err
		}
		pl.TransactionType = ledger.TransactionType(txType)
		pl.EntryDesc = eDesc.String
		result = append(result, pl)
	}
	return result, rows.Err()
}

func (c *conn) AllPostedTotals(ctx context.Context) (map[ledger.AccountID][2]decimal.Decimal, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT l.account_id, l.debit_amount, l.credit_amount
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE e.is_posted = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query posted lines: %w", err)
	}
	defer rows.Close()

	totals := make(map[ledger.AccountID][2]decimal.Decimal)
	for rows.Next() {
		var (
			id            ledger.AccountID
			debit, credit string
		)
		if err := rows.Scan(&id, &debit, &credit); err != nil {
			return nil, err
		}
		dec := amounts{what: fmt.Sprintf("lines of account %d", id)}
		dr, cr := dec.parse(debit), dec.parse(credit)
		if dec.err != nil {
			return nil, dec.err
		}
		t := totals[id]
		totals[id] = [2]decimal.Decimal{t[0].Add(dr), t[1].Add(cr)}
	}
	return totals, rows.Err()
}

// =============================================================================
// COUNTERPARTIES & SUBSIDIARY LEDGER
// =============================================================================

func (c *conn) CreateCounterparty(ctx context.Context, cp *ledger.Counterparty) error {
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO counterparties (kind, id, name, ledger_balance, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(cp.Kind), int64(cp.ID), cp.Name, cp.LedgerBalance.String(),
		cp.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateCounterparty
		}
		return fmt.Errorf("failed to insert counterparty: %w", err)
	}
	return nil
}

func (c *conn) GetCounterparty(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID) (*ledger.Counterparty, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT kind, id, name, ledger_balance, created_at
		FROM counterparties WHERE kind = ? AND id = ?`, string(kind), int64(id))
	cp, err := scanCounterparty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound(string(kind), id)
	}
	return cp, err
}

func (c *conn) ListCounterparties(ctx context.Context, kind ledger.EntityKind) ([]ledger.Counterparty, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT kind, id, name, ledger_balance, created_at
		FROM counterparties WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query counterparties: %w", err)
	}
	defer rows.Close()

	var result []ledger.Counterparty
	for rows.Next() {
		cp, err := scanCounterparty(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cp)
	}
	return result, rows.Err()
}

func scanCounterparty(row scanner) (*ledger.Counterparty, error) {
	var (
		cp        ledger.Counterparty
		kind      string
		balance   string
		createdAt string
	)
	if err := row.Scan(&kind, &cp.ID, &cp.Name, &balance, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan counterparty: %w", err)
	}
	cp.Kind = ledger.EntityKind(kind)
	dec := amounts{what: fmt.Sprintf("%s %d", kind, cp.ID)}
	cp.LedgerBalance = dec.parse(balance)
	if dec.err != nil {
		return nil, dec.err
	}
	cp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &cp, nil
}

func (c *conn) SetLedgerBalance(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID, balance decimal.Decimal) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE counterparties SET ledger_balance = ? WHERE kind = ? AND id = ?`,
		balance.String(), string(kind), int64(id))
	if err != nil {
		return fmt.Errorf("failed to update ledger balance: %w", err)
	}
	return requireAffected(res, ledger.NotFound(string(kind), id))
}

const rowColumns = `id, kind, entity_id, journal_entry_id, entry_date, transaction_type,
	reference, description, debit_amount, credit_amount, balance, created_at`

func (c *conn) LastRow(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID) (*ledger.LedgerRow, error) {
	return c.oneRow(ctx, `
		SELECT `+rowColumns+` FROM subsidiary_ledger
		WHERE kind = ? AND entity_id = ?
		ORDER BY entry_date DESC, id DESC LIMIT 1`, string(kind), int64(id))
}

func (c *conn) LastRowAsOf(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID, asOf ledger.Date) (*ledger.LedgerRow, error) {
	return c.oneRow(ctx, `
		SELECT `+rowColumns+` FROM subsidiary_ledger
		WHERE kind = ? AND entity_id = ? AND entry_date <= ?
		ORDER BY entry_date DESC, id DESC LIMIT 1`, string(kind), int64(id), asOf.String())
}

func (c *conn) oneRow(ctx context.Context, query string, args ...any) (*ledger.LedgerRow, error) {
	r, err := scanRow(c.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *conn) InsertRow(ctx context.Context, row *ledger.LedgerRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO subsidiary_ledger (kind, entity_id, journal_entry_id, entry_date,
			transaction_type, reference, description, debit_amount, credit_amount,
			balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(row.Kind), int64(row.EntityID), int64(row.EntryID), row.Date.String(),
		string(row.Type), nullString(row.Reference), nullString(row.Description),
		row.Debit.String(), row.Credit.String(), row.Balance.String(),
		row.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger row: %w", err)
	}
	row.ID, err = res.LastInsertId()
	return err
}

func (c *conn) Rows(ctx context.Context, kind ledger.EntityKind, id ledger.EntityID, filter ledger.RowFilter) ([]ledger.LedgerRow, error) {
	query := `SELECT ` + rowColumns + ` FROM subsidiary_ledger WHERE kind = ? AND entity_id = ?`
	args := []any{string(kind), int64(id)}
	if filter.From != nil {
		query += ` AND entry_date >= ?`
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		query += ` AND entry_date <= ?`
		args = append(args, filter.To.String())
	}
	query += ` ORDER BY entry_date, id`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger rows: %w", err)
	}
	defer rows.Close()

	var result []ledger.LedgerRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRow(row scanner) (ledger.LedgerRow, error) {
	var (
		r                      ledger.LedgerRow
		kind, date, txType     string
		ref, desc              sql.NullString
		debit, credit, balance string
		createdAt              string
	)
	if err := row.Scan(&r.ID, &kind, &r.EntityID, &r.EntryID, &date, &txType,
		&ref, &desc, &debit, &credit, &balance, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan ledger row: %w", err)
	}
	d, err := ledger.ParseDate(date)
	if err != nil {
		return r, err
	}
	r.Kind = ledger.EntityKind(kind)
	r.Date = d
	r.Type = ledger.TransactionType(txType)
	r.Reference = ref.String
	r.Description = desc.String
	dec := amounts{what: fmt.Sprintf("ledger row %d", r.ID)}
	r.Debit = dec.parse(debit)
	r.Credit = dec.parse(credit)
	r.Balance = dec.parse(balance)
	if dec.err != nil {
		return r, dec.err
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return r, nil
}

func (c *conn) EntitiesWithRows(ctx context.Context, kind ledger.EntityKind) ([]ledger.EntityID, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT DISTINCT entity_id FROM subsidiary_ledger WHERE kind = ? ORDER BY entity_id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entities: %w", err)
	}
	defer rows.Close()

	var ids []ledger.EntityID
	for rows.Next() {
		var id ledger.EntityID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
