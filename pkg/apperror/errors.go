package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

const (
	CodeValidation        = "VAL_001"
	CodeNotFound          = "NF_001"
	CodeInsufficientFunds = "FUND_001"
	CodeInvalidState      = "STATE_001"
	CodeForbidden         = "AUTHZ_001"
	CodeRateLimited       = "RATE_001"
	CodeSelfAction        = "SELF_001"
	CodeInvalidToken      = "AUTH_001"
	CodeInProgress        = "IDEM_001"
	CodeInternal          = "SYS_001"
)

// ---- Input (VAL / NF) ----

// Validation reports malformed input or a non-positive amount.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return Validation("Amount must be positive")
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Settlement (FUND / STATE / SELF) ----

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance", http.StatusUnprocessableEntity)
}

// ErrInvalidState reports a transition that is not legal from the entity's current status.
func ErrInvalidState(message string) *AppError {
	return New(CodeInvalidState, message, http.StatusConflict)
}

// ErrSelfAction covers self-trade, self-match, self-transfer and accepting one's own offer.
func ErrSelfAction(message string) *AppError {
	return New(CodeSelfAction, message, http.StatusBadRequest)
}

// ---- Authorization (AUTHZ / AUTH) ----

func ErrForbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimited(message string) *AppError {
	return New(CodeRateLimited, message, http.StatusTooManyRequests)
}

func ErrRateLimitExceeded() *AppError {
	return ErrRateLimited("Rate limit exceeded")
}

// ---- Idempotency (IDEM) ----

// ErrRequestInProgress rejects a repeated Idempotency-Key whose first request
// has not finished yet.
func ErrRequestInProgress() *AppError {
	return New(CodeInProgress, "A request with this Idempotency-Key is still in progress", http.StatusConflict)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
