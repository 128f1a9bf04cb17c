// Package errs defines the error taxonomy shared by the store, condition
// engine, transaction coordinator, and repository layer.
//
// The shape follows internal/storage/sqlite's sentinel-plus-wrap pattern in
// the teacher repository, generalized with a Kind field because callers
// here need to branch on error category (unique vs required vs FK, etc.),
// not just test identity with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags the category of error per the failure-semantics table.
type Kind string

const (
	KindFieldInvalid        Kind = "field_invalid"
	KindFieldNotFound       Kind = "field_not_found"
	KindDeleteConstraint    Kind = "delete_constraint"
	KindUnknownTable        Kind = "unknown_table"
	KindTypeMismatch        Kind = "type_mismatch"
	KindConditionParseError Kind = "condition_parse_error"
	KindTransactionAborted  Kind = "transaction_aborted"
	KindNestedTransaction   Kind = "nested_transaction"
	KindPoolTimeout         Kind = "pool_timeout"
	KindFetchFailed         Kind = "fetch_failed"
)

// InvalidKind further classifies a KindFieldInvalid error.
type InvalidKind string

const (
	InvalidUnique    InvalidKind = "unique"
	InvalidRequired  InvalidKind = "required"
	InvalidRegexp    InvalidKind = "regexp"
	InvalidMaximum   InvalidKind = "maximum"
	InvalidMinimum   InvalidKind = "minimum"
	InvalidType      InvalidKind = "type"
	InvalidRange     InvalidKind = "range"
)

// Error is the stable, user-visible error shape: a Kind, a message, and
// (for field-level errors) the offending table/field/value.
type Error struct {
	Kind        Kind
	InvalidKind InvalidKind // only set when Kind == KindFieldInvalid
	Table       string
	Field       string
	Value       string // redacted representation, never the raw secret/PII
	Reason      string // only set when Kind == KindTransactionAborted
	msg         string
	wrapped     error
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg
	}
	switch e.Kind {
	case KindFieldInvalid:
		return fmt.Sprintf("%s.%s: invalid (%s): %s", e.Table, e.Field, e.InvalidKind, redact(e.Value))
	case KindDeleteConstraint:
		return fmt.Sprintf("delete constraint: %s", e.msg)
	case KindTransactionAborted:
		return fmt.Sprintf("transaction aborted: %s", e.Reason)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.wrapped }

// redact truncates a value so error messages never leak full field
// contents (per §7's "redacted value" requirement).
func redact(v string) string {
	const max = 64
	if len(v) <= max {
		return v
	}
	return v[:max] + "…"
}

// FieldInvalid builds a KindFieldInvalid error.
func FieldInvalid(kind InvalidKind, table, field, value string) *Error {
	return &Error{Kind: KindFieldInvalid, InvalidKind: kind, Table: table, Field: field, Value: redact(value)}
}

// FieldNotFound builds a KindFieldNotFound error.
func FieldNotFound(table, field string) *Error {
	return &Error{Kind: KindFieldNotFound, Table: table, Field: field,
		msg: fmt.Sprintf("%s: unknown field %q", table, field)}
}

// DeleteConstraint builds a KindDeleteConstraint error referencing the row
// that still points at the record being deleted, formatted per §4.4 as
// "source_table.#id.field -> #value".
func DeleteConstraint(sourceTable, sourceID, field, targetID string) *Error {
	return &Error{
		Kind:  KindDeleteConstraint,
		Table: sourceTable,
		Field: field,
		Value: targetID,
		msg:   fmt.Sprintf("%s.#%s.%s -> #%s", sourceTable, sourceID, field, targetID),
	}
}

// UnknownTable builds a KindUnknownTable error.
func UnknownTable(table string) *Error {
	return &Error{Kind: KindUnknownTable, Table: table, msg: fmt.Sprintf("unknown table %q", table)}
}

// TypeMismatch builds a KindTypeMismatch error.
func TypeMismatch(table, field, detail string) *Error {
	return &Error{Kind: KindTypeMismatch, Table: table, Field: field,
		msg: fmt.Sprintf("%s.%s: type mismatch: %s", table, field, detail)}
}

// ConditionParseError builds a KindConditionParseError error. cause may be
// nil when the parser detected the problem itself (no underlying error to
// wrap).
func ConditionParseError(detail string, cause error) *Error {
	return &Error{Kind: KindConditionParseError, msg: fmt.Sprintf("condition parse error: %s", detail), wrapped: cause}
}

// TransactionAborted builds a KindTransactionAborted error for a failure
// with no more specific typed cause (e.g. a plain error from application
// code). Prefer AsTransactionFailure, which preserves a typed *Error's own
// Kind instead of flattening it.
func TransactionAborted(reason string) *Error {
	return &Error{Kind: KindTransactionAborted, Reason: reason}
}

// AsTransactionFailure reports what the transaction coordinator should
// return for a failed fn: if cause already carries a typed *Error (a
// FieldInvalid, DeleteConstraint, etc. raised by application code inside
// the transaction), that error is returned unchanged so callers can
// errs.As/errs.Is against its real Kind. Only a cause with no typed Error
// underneath it is wrapped as KindTransactionAborted.
func AsTransactionFailure(cause error) *Error {
	if e, ok := As(cause); ok {
		return e
	}
	return &Error{Kind: KindTransactionAborted, Reason: cause.Error(), wrapped: cause}
}

// NestedTransaction builds a KindNestedTransaction error.
func NestedTransaction() *Error {
	return &Error{Kind: KindNestedTransaction, msg: "transaction.execute called while a transaction is already executing"}
}

// PoolTimeout builds a KindPoolTimeout error.
func PoolTimeout() *Error {
	return &Error{Kind: KindPoolTimeout, msg: "timed out waiting for a pooled connection"}
}

// FetchFailed wraps an error raised by a fetch hook. It does not abort the
// enclosing transaction (see transaction coordinator §4.5).
func FetchFailed(err error) *Error {
	return &Error{Kind: KindFetchFailed, msg: fmt.Sprintf("fetch failed: %v", err), wrapped: err}
}

// As reports whether err is (or wraps) an *Error, mirroring errors.As.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
