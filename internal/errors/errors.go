package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	AccountNotFound   ErrorCode = "account_not_found"
	AccountBlocked    ErrorCode = "account_blocked"
	PINWrong          ErrorCode = "pin_wrong"
	InsufficientFunds ErrorCode = "insufficient_funds"
	InvalidAmount     ErrorCode = "invalid_amount"
	InvalidInput      ErrorCode = "invalid_input"
	LedgerUnavailable ErrorCode = "ledger_unavailable"
	LedgerWriteFailed ErrorCode = "ledger_write_failed"
	TransportClosed   ErrorCode = "transport_closed"
	InternalError     ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, ErrAccountNotFound) holds for copies carrying details.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy so the predefined errors below stay immutable.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Wrap returns a copy that records cause as details and as the unwrap target.
func (e *AppError) Wrap(cause error) *AppError {
	cp := *e
	cp.Details = cause.Error()
	cp.cause = cause
	return &cp
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case AccountNotFound:
		return http.StatusNotFound
	case AccountBlocked:
		return http.StatusForbidden
	case PINWrong:
		return http.StatusUnauthorized
	case InsufficientFunds:
		return http.StatusUnprocessableEntity
	case InvalidAmount, InvalidInput:
		return http.StatusBadRequest
	case LedgerUnavailable, TransportClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf extracts the code of the first AppError in err's chain. It returns
// the empty code for a nil error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return InternalError
}

// Predefined errors for common cases
var (
	ErrAccountNotFound   = NewAppError(AccountNotFound, "account not found")
	ErrAccountBlocked    = NewAppError(AccountBlocked, "account blocked after too many failed PIN attempts")
	ErrPINWrong          = NewAppError(PINWrong, "PIN does not match")
	ErrInsufficientFunds = NewAppError(InsufficientFunds, "insufficient funds")
	ErrInvalidAmount     = NewAppError(InvalidAmount, "amount must be positive with at most two decimal places")
	ErrInvalidInput      = NewAppError(InvalidInput, "invalid input")
	ErrLedgerUnavailable = NewAppError(LedgerUnavailable, "ledger file unavailable")
	ErrLedgerWriteFailed = NewAppError(LedgerWriteFailed, "failed to write ledger")
	ErrTransportClosed   = NewAppError(TransportClosed, "transport closed")
)
