package ledger

import (
	"errors"
	"fmt"
)

// Code categorizes ledger errors.
type Code string

const (
	// CodeIdentityUnavailable means no scope could be resolved. Fatal per request.
	CodeIdentityUnavailable Code = "IDENTITY_UNAVAILABLE"

	// CodeProductUnavailable means the product is unknown or not purchasable.
	CodeProductUnavailable Code = "PRODUCT_UNAVAILABLE"

	// CodeInvalidInput means a domain constraint on the input failed.
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeInvalidStatus means the requested delivery status is not legal.
	CodeInvalidStatus Code = "INVALID_STATUS"

	// CodeNotFound means the entity does not exist within the caller's scope.
	CodeNotFound Code = "NOT_FOUND"

	// CodeResourceBusy means write contention outlasted the retry budget.
	// The client may retry.
	CodeResourceBusy Code = "RESOURCE_BUSY"

	// CodeStorage covers storage failures that are not contention.
	CodeStorage Code = "STORAGE"
)

// Error is the single error type ledger operations return.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the failing operation, e.g. "cart.upsert".
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. They match any *Error with the same Code.
var (
	ErrIdentityUnavailable = &Error{Code: CodeIdentityUnavailable}
	ErrProductUnavailable  = &Error{Code: CodeProductUnavailable}
	ErrInvalidInput        = &Error{Code: CodeInvalidInput}
	ErrInvalidStatus       = &Error{Code: CodeInvalidStatus}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrResourceBusy        = &Error{Code: CodeResourceBusy}
	ErrStorage             = &Error{Code: CodeStorage}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	switch {
	case e.Op != "" && msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s: %s", e.Code, msg)
	default:
		return string(e.Code)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// E builds an *Error.
func E(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around cause.
func Wrap(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// Retryable reports whether the client may retry the operation unchanged.
func Retryable(err error) bool {
	return CodeOf(err) == CodeResourceBusy
}
