// Package errors provides categorized errors that carry an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/usdt-market/internal/types"
)

// ErrorCategory groups error codes by who is at fault
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryAuthorization ErrorCategory = "authorization"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryConflict      ErrorCategory = "conflict"
	// CategoryChain covers on-chain rule failures such as a reverted transfer
	CategoryChain ErrorCategory = "chain"
	// CategoryProvider covers RPC node failures
	CategoryProvider      ErrorCategory = "provider"
	CategoryConfiguration ErrorCategory = "configuration"
	CategorySystem        ErrorCategory = "system"
	CategoryDatabase      ErrorCategory = "database"
	CategoryRateLimit     ErrorCategory = "rate_limit"
)

// Error codes returned to API clients
const (
	CodeInvalidParameter      = "INVALID_PARAMETER"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeNotFound              = "NOT_FOUND"
	CodeConflict              = "CONFLICT"
	CodePayoutInProgress      = "PAYOUT_IN_PROGRESS"
	CodeInsufficientAllowance = "INSUFFICIENT_ALLOWANCE"
	CodeTransactionRejected   = "TRANSACTION_REJECTED"
	CodeChainUnavailable      = "CHAIN_UNAVAILABLE"
	CodeConfigurationMissing  = "CONFIGURATION_MISSING"
	CodeMaintenance           = "MAINTENANCE_MODE"
	CodeInternal              = "INTERNAL_ERROR"
	CodeDatabase              = "DATABASE_ERROR"
	CodeRateLimit             = "RATE_LIMIT_EXCEEDED"
)

// CategorizedError is an error that knows its HTTP status and client code.
// Cause is logged but never sent to clients.
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

func (e *CategorizedError) Error() string {
	if e.Cause == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
}

func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError returns the client-facing body
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{Code: e.Code, Message: e.Message, Details: e.Details}
}

func newError(category ErrorCategory, status int, code, message string) *CategorizedError {
	return &CategorizedError{Category: category, StatusCode: status, Code: code, Message: message}
}

func (e *CategorizedError) with(kv ...interface{}) *CategorizedError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(kv)/2)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		e.Details[kv[i].(string)] = kv[i+1]
	}
	return e
}

func (e *CategorizedError) because(cause error) *CategorizedError {
	e.Cause = cause
	return e
}

// NewValidationError creates a 400 error with a free-form message
func NewValidationError(message string) *CategorizedError {
	return newError(CategoryValidation, http.StatusBadRequest, CodeInvalidParameter, message)
}

// NewInvalidParameterError names the offending parameter
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	msg := fmt.Sprintf("invalid parameter '%s': %s", param, reason)
	return newError(CategoryValidation, http.StatusBadRequest, CodeInvalidParameter, msg).
		with("parameter", param, "reason", reason)
}

func NewUnauthorizedError(message string) *CategorizedError {
	return newError(CategoryAuthorization, http.StatusUnauthorized, CodeUnauthorized, message)
}

func NewNotFoundError(resource string, id string) *CategorizedError {
	return newError(CategoryNotFound, http.StatusNotFound, CodeNotFound, resource+" not found").
		with("resource", resource, "id", id)
}

func NewConflictError(message string) *CategorizedError {
	return newError(CategoryConflict, http.StatusConflict, CodeConflict, message)
}

// NewPayoutInProgressError is returned when another payout holds the wallet
func NewPayoutInProgressError(walletID int64) *CategorizedError {
	msg := fmt.Sprintf("a payout for wallet %d is already in progress", walletID)
	return newError(CategoryConflict, http.StatusConflict, CodePayoutInProgress, msg).
		with("walletId", walletID)
}

// NewInsufficientAllowanceError reports both the held and required amounts
func NewInsufficientAllowanceError(has, needs string) *CategorizedError {
	msg := fmt.Sprintf("User allowance is insufficient. Has: %s, Needs: %s", has, needs)
	return newError(CategoryChain, http.StatusBadRequest, CodeInsufficientAllowance, msg).
		with("has", has, "needs", needs)
}

// NewTransactionRejectedError is returned when a node refuses or reverts a transfer
func NewTransactionRejectedError(message string, cause error) *CategorizedError {
	return newError(CategoryChain, http.StatusBadRequest, CodeTransactionRejected, message).because(cause)
}

// NewChainUnavailableError is returned when an RPC node fails or times out
func NewChainUnavailableError(network string, cause error) *CategorizedError {
	return newError(CategoryProvider, http.StatusBadGateway, CodeChainUnavailable, "chain unavailable: "+network).
		with("network", network).
		because(cause)
}

// NewConfigurationMissingError names the setting a request needed
func NewConfigurationMissingError(setting string) *CategorizedError {
	return newError(CategoryConfiguration, http.StatusInternalServerError, CodeConfigurationMissing,
		"server configuration missing: "+setting).
		with("setting", setting)
}

func NewMaintenanceError() *CategorizedError {
	return newError(CategorySystem, http.StatusServiceUnavailable, CodeMaintenance, "marketplace is in maintenance mode")
}

func NewRateLimitError() *CategorizedError {
	return newError(CategoryRateLimit, http.StatusTooManyRequests, CodeRateLimit, "Rate limit exceeded. Please try again later.")
}

func NewInternalError(message string, cause error) *CategorizedError {
	return newError(CategorySystem, http.StatusInternalServerError, CodeInternal, message).because(cause)
}

// NewDatabaseError hides the driver error from clients behind the operation name
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return newError(CategoryDatabase, http.StatusInternalServerError, CodeDatabase, "database error during "+operation).
		with("operation", operation).
		because(cause)
}

// Categorize finds the categorized error in err's chain. A bare
// ServiceError keeps its code as a 500; anything else is internal.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		e := newError(CategorySystem, http.StatusInternalServerError, svcErr.Code, svcErr.Message)
		e.Details = svcErr.Details
		return e
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the status an error should be answered with
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err is a categorized error with the given code
func HasCode(err error, code string) bool {
	var catErr *CategorizedError
	return errors.As(err, &catErr) && catErr.Code == code
}

// IsUserError reports a 4xx error
func IsUserError(err error) bool {
	status := GetHTTPStatusCode(err)
	return err != nil && status >= 400 && status < 500
}

// IsSystemError reports a 5xx error
func IsSystemError(err error) bool {
	return err != nil && GetHTTPStatusCode(err) >= 500
}
