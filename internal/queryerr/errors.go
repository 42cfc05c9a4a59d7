// Package queryerr defines the engine's error taxonomy: a small set of
// stable codes rather than a proliferation of sentinel types.
package queryerr

import (
	"errors"
	"fmt"
)

// Code is a stable error classification, independent of the underlying
// Go error type. Callers (HTTP handlers, log lines) switch on Code, never
// on a type assertion.
type Code string

const (
	CodeQueryNotFound Code = "QUERY_NOT_FOUND"
	CodeDefinitionErr Code = "DEFINITION_ERROR"
	CodeValidationErr Code = "VALIDATION_ERROR"
	CodeExecutionErr  Code = "EXECUTION_ERROR"
	CodeTimeoutErr    Code = "TIMEOUT_ERROR"
	CodeSecurityErr   Code = "SECURITY_ERROR"
)

// Error is the engine-wide error envelope. QueryName is optional context
// attached by the pipeline so an execution failure surfaces with the
// query it belongs to.
type Error struct {
	Code      Code
	Message   string
	QueryName string
	Cause     error
}

func (e *Error) Error() string {
	if e.QueryName != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s [query=%s]: %v", e.Code, e.Message, e.QueryName, e.Cause)
		}
		return fmt.Sprintf("%s: %s [query=%s]", e.Code, e.Message, e.QueryName)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new *Error of the given code.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithQuery returns a copy of err annotated with the query name.
func (e *Error) WithQuery(name string) *Error {
	cp := *e
	cp.QueryName = name
	return &cp
}

// CodeOf extracts the Code from err, defaulting to CodeExecutionErr for
// errors the engine did not itself classify (e.g. a raw driver error that
// escaped without being wrapped).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeExecutionErr
}

// Sentinel errors referenced by multiple packages (definition validator,
// registry, bind-parameter scan), grouped by concern.
var (
	ErrDuplicateAttribute = errors.New("duplicate attribute name")
	ErrDuplicateAlias     = errors.New("duplicate alias name")
	ErrDuplicateParam     = errors.New("duplicate parameter name")
	ErrDuplicateCriteria  = errors.New("duplicate criteria name")
	ErrNamespaceCollision = errors.New("name collides across attribute/parameter/criterion namespaces")
	ErrVirtualNoCalc      = errors.New("virtual attribute has no calculator")
	ErrVirtualFilterable  = errors.New("virtual attribute cannot be filterable")
	ErrVirtualSortNoProp  = errors.New("virtual sortable attribute has no sortProperty")
	ErrUnboundParam       = errors.New("bind parameter is not declared, system, or filter-generated")
	ErrUnknownQuery       = errors.New("no query definition registered under that name")
	ErrDuplicateQueryName = errors.New("a query is already registered under that name")
)
