package router

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a forwarding failure.
type ErrorKind string

const (
	KindUnknownProvider ErrorKind = "unknown_provider"
	KindEmptyResponse   ErrorKind = "empty_response"
	KindBackend         ErrorKind = "backend"
	KindInvalidRequest  ErrorKind = "invalid_request"
)

// Backend failure reasons. The backend's own message is never rewritten;
// Reason only tells the caller which bucket it falls into.
const (
	ReasonNetwork    = "network"
	ReasonAuth       = "auth"
	ReasonRateLimit  = "rate_limit"
	ReasonTimeout    = "timeout"
	ReasonCanceled   = "canceled"
	ReasonUpstream   = "upstream"
	ReasonBadRequest = "bad_request"
)

// Error is the classified failure returned by Resolve and Forward.
type Error struct {
	Kind    ErrorKind
	Alias   string
	Reason  string
	Message string
	Err     error

	// Attempts is the number of backend calls made before failing.
	Attempts int
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Alias != "" {
		msg = fmt.Sprintf("%s [llm=%s]", msg, e.Alias)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the backend-reported cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so errors.Is(err, ErrBackend) works for any backend failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrUnknownProvider = &Error{Kind: KindUnknownProvider, Message: "provider not configured"}
	ErrEmptyResponse   = &Error{Kind: KindEmptyResponse, Message: "backend returned an empty response"}
	ErrBackend         = &Error{Kind: KindBackend, Message: "backend call failed"}
	ErrInvalidRequest  = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
)

// UnknownProviderError reports an alias with no configuration.
func UnknownProviderError(alias string) *Error {
	return &Error{
		Kind:    KindUnknownProvider,
		Alias:   alias,
		Message: fmt.Sprintf("provider %q not found in configuration", alias),
	}
}

// EmptyResponseError reports a backend that stayed silent after the retry.
func EmptyResponseError(alias string, attempts int) *Error {
	return &Error{
		Kind:     KindEmptyResponse,
		Alias:    alias,
		Message:  fmt.Sprintf("backend returned no content after %d attempts, retry the request manually", attempts),
		Attempts: attempts,
	}
}

// BackendError wraps a transport or provider failure without reinterpreting it.
func BackendError(alias, reason string, cause error) *Error {
	return &Error{
		Kind:    KindBackend,
		Alias:   alias,
		Reason:  reason,
		Message: fmt.Sprintf("backend call failed (%s)", reason),
		Err:     cause,
	}
}

// InvalidRequestError reports a request rejected before any outbound call.
func InvalidRequestError(alias, message string) *Error {
	return &Error{
		Kind:    KindInvalidRequest,
		Alias:   alias,
		Message: message,
	}
}

// KindOf returns the kind of a router error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Kind
	}
	return ""
}

// AttemptsOf returns how many backend calls a failed Forward made.
func AttemptsOf(err error) int {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Attempts
	}
	return 0
}

// ReasonOf returns the backend reason, or "" when err is not a backend failure.
func ReasonOf(err error) string {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Reason
	}
	return ""
}

// IsUnknownProvider checks if an error is an unknown provider error
func IsUnknownProvider(err error) bool {
	return KindOf(err) == KindUnknownProvider
}

// IsEmptyResponse checks if an error is an empty response error
func IsEmptyResponse(err error) bool {
	return KindOf(err) == KindEmptyResponse
}

// IsBackend checks if an error is a backend error
func IsBackend(err error) bool {
	return KindOf(err) == KindBackend
}

// IsInvalidRequest checks if an error is an invalid request error
func IsInvalidRequest(err error) bool {
	return KindOf(err) == KindInvalidRequest
}
