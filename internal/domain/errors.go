package domain

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error classes the gateway reports.
type Kind string

const (
	KindAuthentication     Kind = "AUTHENTICATION"
	KindValidation         Kind = "VALIDATION"
	KindInvalidTransition  Kind = "INVALID_TRANSITION"
	KindNotFound           Kind = "NOT_FOUND"
	KindConcurrency        Kind = "CONCURRENCY"
	KindDuplicateOperation Kind = "DUPLICATE_OPERATION"
	KindDeadlineExceeded   Kind = "DEADLINE_EXCEEDED"
	KindAttemptsExhausted  Kind = "ATTEMPTS_EXHAUSTED"
	KindInternal           Kind = "INTERNAL"
)

// Merchant-facing error codes. "0" is success.
const (
	CodeSuccess                 = "0"
	CodeMissingToken            = "201"
	CodeInvalidToken            = "202"
	CodeMerchantNotFound        = "203"
	CodeValidation              = "300"
	CodeAmountExceedsAuthorized = "301"
	CodeDuplicateOperation      = "310"
	CodeDuplicateOrder          = "320"
	CodeInvalidTransition       = "400"
	CodeNotFound                = "404"
	CodeConcurrency             = "409"
	CodeDeadlineExceeded        = "410"
	CodeAttemptsExhausted       = "420"
	CodeInternal                = "9999"
)

// Error represents a gateway error of a known kind
type Error struct {
	Kind    Kind
	Code    string
	Reason  ReasonCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind, and by code and reason when the sentinel
// carries them.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Retryable reports whether the caller may retry the same request unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindConcurrency
}

// Sentinels for errors.Is.
var (
	ErrAuthentication     = &Error{Kind: KindAuthentication}
	ErrMissingToken       = &Error{Kind: KindAuthentication, Code: CodeMissingToken}
	ErrInvalidToken       = &Error{Kind: KindAuthentication, Code: CodeInvalidToken}
	ErrMerchantNotFound   = &Error{Kind: KindAuthentication, Code: CodeMerchantNotFound}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConcurrency        = &Error{Kind: KindConcurrency}
	ErrLockTimeout        = &Error{Kind: KindConcurrency, Reason: ReasonLockTimeout}
	ErrStaleVersion       = &Error{Kind: KindConcurrency, Reason: ReasonStaleVersion}
	ErrDuplicateOperation = &Error{Kind: KindDuplicateOperation}
	ErrDeadlineExceeded   = &Error{Kind: KindDeadlineExceeded}
	ErrAttemptsExhausted  = &Error{Kind: KindAttemptsExhausted}
	ErrInternal           = &Error{Kind: KindInternal}
)

func NewMissingTokenError() *Error {
	return &Error{
		Kind:    KindAuthentication,
		Code:    CodeMissingToken,
		Message: "token is required",
	}
}

func NewInvalidTokenError() *Error {
	return &Error{
		Kind:    KindAuthentication,
		Code:    CodeInvalidToken,
		Message: "token does not match request",
	}
}

func NewMerchantNotFoundError(merchantID string) *Error {
	return &Error{
		Kind:    KindAuthentication,
		Code:    CodeMerchantNotFound,
		Message: fmt.Sprintf("merchant %s not found or inactive", merchantID),
	}
}

func NewValidationError(message string, err error) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Message: message,
		Err:     err,
	}
}

func NewMissingRequiredFieldError(field string) *Error {
	return NewValidationError(fmt.Sprintf("%s is required", field), nil)
}

func NewInvalidTransitionError(id string, from, to Status, reason ReasonCode) *Error {
	code := CodeInvalidTransition
	if reason == ReasonAmountExceedsAuthorized {
		code = CodeAmountExceedsAuthorized
	}
	return &Error{
		Kind:    KindInvalidTransition,
		Code:    code,
		Reason:  reason,
		Message: fmt.Sprintf("transaction %s cannot move from %s to %s: %s", id, from, to, reason),
	}
}

func NewNotFoundError(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s not found", entity, id),
	}
}

func NewTransactionNotFoundError(id string) *Error {
	return NewNotFoundError("transaction", id)
}

func NewLockTimeoutError(key string) *Error {
	return &Error{
		Kind:    KindConcurrency,
		Code:    CodeConcurrency,
		Reason:  ReasonLockTimeout,
		Message: fmt.Sprintf("timed out waiting for lock on %s", key),
	}
}

func NewStaleVersionError(id string, expected int64) *Error {
	return &Error{
		Kind:    KindConcurrency,
		Code:    CodeConcurrency,
		Reason:  ReasonStaleVersion,
		Message: fmt.Sprintf("transaction %s changed since version %d", id, expected),
	}
}

func NewDuplicateOperationError(key string) *Error {
	return &Error{
		Kind:    KindDuplicateOperation,
		Code:    CodeDuplicateOperation,
		Message: fmt.Sprintf("operation key %s reused with different parameters", key),
	}
}

func NewDuplicateOrderError(orderID string) *Error {
	return &Error{
		Kind:    KindDuplicateOperation,
		Code:    CodeDuplicateOrder,
		Message: fmt.Sprintf("order %s already has an active transaction with different parameters", orderID),
	}
}

func NewDeadlineExceededError(id string) *Error {
	return &Error{
		Kind:    KindDeadlineExceeded,
		Code:    CodeDeadlineExceeded,
		Reason:  ReasonDeadlineExceeded,
		Message: fmt.Sprintf("transaction %s has passed its deadline", id),
	}
}

func NewAttemptsExhaustedError(id string, attempts int) *Error {
	return &Error{
		Kind:    KindAttemptsExhausted,
		Code:    CodeAttemptsExhausted,
		Reason:  ReasonAttemptsExhausted,
		Message: fmt.Sprintf("transaction %s used all %d authorization attempts", id, attempts),
	}
}

func NewInternalError(err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: "internal error",
		Err:     err,
	}
}

// NewTransitionDeniedError converts a state machine refusal into the matching error kind.
func NewTransitionDeniedError(tx *Transaction, target Status, reason ReasonCode) *Error {
	switch reason {
	case ReasonDeadlineExceeded:
		return NewDeadlineExceededError(tx.ID)
	case ReasonAttemptsExhausted:
		return NewAttemptsExhaustedError(tx.ID, tx.AttemptCount)
	default:
		return NewInvalidTransitionError(tx.ID, tx.Status, target, reason)
	}
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsKind checks if an error is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	if e, ok := AsError(err); ok {
		return e.Kind == kind
	}
	return false
}
