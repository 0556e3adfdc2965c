package services

import (
	"errors"
	"fmt"

	"github.com/upb/askllm/internal/router"
	"github.com/upb/askllm/utils"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeEmpty       ErrorType = "empty_response"
	ErrorTypeExternal    ErrorType = "external"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeInternal    ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	ErrInvalidInput  = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrAuditDisabled = NewDomainError(ErrorTypeUnavailable, "audit ledger disabled", nil)
)

// FromRouterError turns a Forward failure into a DomainError. The router
// error stays reachable through Unwrap so kind and reason are not lost.
func FromRouterError(err error) error {
	if err == nil {
		return nil
	}

	var rErr *router.Error
	if !errors.As(err, &rErr) {
		return WrapInternal("forward failed", err)
	}

	var dErr *DomainError
	switch rErr.Kind {
	case router.KindUnknownProvider:
		dErr = NewDomainError(ErrorTypeNotFound, rErr.Message, err)
	case router.KindInvalidRequest:
		dErr = NewDomainError(ErrorTypeValidation, rErr.Message, err)
	case router.KindEmptyResponse:
		dErr = NewDomainError(ErrorTypeEmpty, rErr.Message, err)
	case router.KindBackend:
		switch rErr.Reason {
		case router.ReasonRateLimit:
			dErr = NewDomainError(ErrorTypeRateLimit, rErr.Message, err)
		case router.ReasonTimeout:
			dErr = NewDomainError(ErrorTypeTimeout, rErr.Message, err)
		default:
			dErr = NewDomainError(ErrorTypeExternal, rErr.Message, err)
		}
	default:
		dErr = NewDomainError(ErrorTypeInternal, rErr.Message, err)
	}

	dErr.WithDetail("llm", rErr.Alias).WithDetail("kind", string(rErr.Kind))
	if rErr.Reason != "" {
		dErr.WithDetail("reason", rErr.Reason)
	}
	if rErr.Attempts > 0 {
		dErr.WithDetail("attempts", rErr.Attempts)
	}
	if rErr.Err != nil {
		dErr.WithDetail("cause", rErr.Err.Error())
	}
	var transient retryable
	if errors.As(rErr.Err, &transient) {
		dErr.WithDetail("retryable", transient.IsRetryable())
	}
	return dErr
}

// retryable is implemented by transport errors that know whether a later
// manual retry may succeed
type retryable interface {
	IsRetryable() bool
}

// FromValidationError wraps a utils.ValidationError, copying its fields into details
func FromValidationError(err error) error {
	dErr := NewDomainError(ErrorTypeValidation, "Validation failed", err)
	for field, msg := range utils.GetValidationFields(err) {
		dErr.WithDetail(field, msg)
	}
	return dErr
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return GetErrorType(err) == ErrorTypeRateLimit
}

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool {
	return GetErrorType(err) == ErrorTypeTimeout
}

// IsEmptyResponseError checks if the backend stayed silent
func IsEmptyResponseError(err error) bool {
	return GetErrorType(err) == ErrorTypeEmpty
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// IsUnavailableError checks if a feature is switched off
func IsUnavailableError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnavailable
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the type of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
