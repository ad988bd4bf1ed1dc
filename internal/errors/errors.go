// Package errors implements the taxonomy of per-file failures the
// ingestion pipeline records into error_code/error_message columns and
// xml_process_logs rows, wrapped in a single AppError type so stages
// never have to compare raw strings.
package errors

import (
	"fmt"
)

// Severity classifies how an AppError should be treated by callers: logged
// and retried (Warning/Error) versus surfaced as a fatal run abort (Critical).
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "error"
	}
}

// Code is the closed taxonomy from spec §7, plus the structural/row-key
// codes needed by Stage F/G/H.
type Code string

const (
	CodeZipOpen           Code = "ZIP_OPEN"
	CodeZipPassword       Code = "ZIP_PASSWORD"
	CodeZipLongPath       Code = "ZIP_LONG_PATH"
	CodeZipEmptyContent   Code = "ZIP_EMPTY_CONTENT"
	CodeZipUnexpected     Code = "ZIP_UNEXPECTED"
	CodeZipMemberNotFound Code = "ZIP_MEMBER_NOT_FOUND"
	CodeParentZipMissing  Code = "PARENT_ZIP_MISSING"

	CodeStructNoDataDir    Code = "STRUCT_NO_DATA_DIR"
	CodeStructMultiDataDir Code = "STRUCT_MULTI_DATA_DIR"
	CodeStructZeroXML      Code = "STRUCT_ZERO_XML"

	CodeXMLParse     Code = "XML_PARSE"
	CodeXMLParseLxml Code = "XML_PARSE_LXML"

	CodeLedgerUpsert Code = "LEDGER_UPSERT"

	CodeRowKeyMissing Code = "ROW_KEY_MISSING"
)

// AppError is the structured error value every stage wraps a failure in
// before persisting it or logging it.
type AppError struct {
	Code      Code
	Component string
	Operation string
	Message   string
	Cause     error
	Severity  Severity
	Metadata  map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s.%s: %s: %v", e.Code, e.Component, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Component, e.Operation, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New builds an AppError at the default SeverityError level.
func New(code Code, component, operation, message string) *AppError {
	return &AppError{
		Code:      code,
		Component: component,
		Operation: operation,
		Message:   message,
		Severity:  SeverityError,
		Metadata:  make(map[string]interface{}),
	}
}

func NewWarning(code Code, component, operation, message string) *AppError {
	e := New(code, component, operation, message)
	e.Severity = SeverityWarning
	return e
}

func NewCritical(code Code, component, operation, message string) *AppError {
	e := New(code, component, operation, message)
	e.Severity = SeverityCritical
	return e
}

// Wrap attaches an underlying cause without discarding the taxonomy code.
func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func (e *AppError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

func (e *AppError) IsWarning() bool {
	return e.Severity == SeverityWarning
}

// ToMap flattens the error for structured logging fields.
func (e *AppError) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"code":      string(e.Code),
		"component": e.Component,
		"operation": e.Operation,
		"message":   e.Message,
		"severity":  e.Severity.String(),
	}
	if e.Cause != nil {
		m["cause"] = e.Cause.Error()
	}
	for k, v := range e.Metadata {
		m[k] = v
	}
	return m
}

// As reports whether err is an *AppError and returns it.
func As(err error) (*AppError, bool) {
	ae, ok := err.(*AppError)
	return ae, ok
}

// Shorten truncates a message to at most max runes, appending an ellipsis
// marker — mirrors the original extraction code's _shorten helper, used
// when persisting ZIP/XSD error text that can otherwise run unbounded.
func Shorten(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "...(truncated)"
}
