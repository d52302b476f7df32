/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error kinds in one place. Callers classify failures with errors.Is
  against the kind sentinels and pull context out with errors.As.

ERROR KINDS:
  1. Validation  - the entry (or document) would break a bookkeeping
                   invariant; rejected before anything is written
  2. Reference   - an account, entry or counterparty does not exist
  3. Integrity   - an entry number collided; retry the whole unit of work
  4. Configuration - required chart accounts are missing for a tenant

SEE ALSO:
  - journal.go: raises Validation, Reference and Integrity errors
  - chart.go: raises MissingAccountsError
*/
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the kind of every rejected-before-write failure.
	ErrValidation = errors.New("ledger: validation failed")

	// ErrReferenceNotFound is the kind of every unknown id/code failure.
	ErrReferenceNotFound = errors.New("ledger: reference not found")

	// ErrIntegrity is returned when a unique constraint (entry number) collides.
	// The whole unit of work may be retried with a fresh number.
	ErrIntegrity = errors.New("ledger: integrity violation")

	// ErrConfiguration is returned when a tenant's chart is incomplete.
	ErrConfiguration = errors.New("ledger: configuration error")

	// ErrDuplicateAccountCode is returned when an account code already exists.
	ErrDuplicateAccountCode = errors.New("ledger: duplicate account code")

	// ErrDuplicateCounterparty is returned when a counterparty id is reused.
	ErrDuplicateCounterparty = errors.New("ledger: duplicate counterparty")
)

// Validation codes
const (
	CodeTooFewLines      = "too_few_lines"
	CodeUnbalanced       = "unbalanced"
	CodeBadLineShape     = "bad_line_shape"
	CodeNegativeAmount   = "negative_amount"
	CodePrecision        = "precision"
	CodeInactiveAccount  = "inactive_account"
	CodeBadDate          = "bad_date"
	CodeBadType          = "bad_type"
	CodeBackdatedRow     = "backdated_row"
	CodeUnbalancedSource = "unbalanced_source"
	CodeBadAccount       = "bad_account"
	CodeAlreadyReversed  = "already_reversed"
	CodeNotPosted        = "not_posted"
	CodeNoCounterparty   = "no_counterparty"
	CodeBadAmount        = "bad_amount"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes why an entry or document was rejected.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError. Composers use it for document-level
// rejections.
func Invalid(code, format string, args ...any) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func invalid(code, format string, args ...any) error { return Invalid(code, format, args...) }

// ReferenceError names the missing thing.
type ReferenceError struct {
	Kind string // "account", "entry", "counterparty"
	Ref  string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Ref)
}

func (e *ReferenceError) Unwrap() error { return ErrReferenceNotFound }

// NotFound builds a ReferenceError.
func NotFound(kind string, ref any) error {
	return &ReferenceError{Kind: kind, Ref: fmt.Sprint(ref)}
}

// IntegrityError reports a colliding unique key.
type IntegrityError struct {
	Key string
	Err error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("duplicate key %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("duplicate key %s", e.Key)
}

func (e *IntegrityError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrIntegrity, e.Err}
	}
	return []error{ErrIntegrity}
}

// MissingAccountsError lists chart roles whose account codes are absent.
type MissingAccountsError struct {
	Missing map[Role]string // role -> expected code
}

func (e *MissingAccountsError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for role, code := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s (%s)", role, code))
	}
	sort.Strings(parts)
	return "required accounts missing from chart: " + strings.Join(parts, ", ")
}

func (e *MissingAccountsError) Unwrap() error { return ErrConfiguration }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateAccountCode) ||
		errors.Is(err, ErrDuplicateCounterparty)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrReferenceNotFound)
}
