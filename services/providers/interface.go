package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/upb/askllm/internal/router"
)

// Provider represents a unified LLM provider transport
type Provider interface {
	// Name returns the provider name (e.g., "openai", "anthropic", "gemini")
	Name() string

	// Complete sends one prompt and returns the provider's answer
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// CheckCredentials makes one read-only call with apiKey. An empty
	// baseURL means the provider's configured endpoint.
	CheckCredentials(ctx context.Context, apiKey, baseURL string) error
}

// CompletionRequest is a single-turn request for one provider call
type CompletionRequest struct {
	// Model is the provider-local model name (prefix already stripped)
	Model string

	// APIKey authenticates this call
	APIKey string

	// BaseURL overrides the provider's default endpoint
	BaseURL string

	// Prompt is sent as the only user message
	Prompt string

	// Attachment is optional and sent in the same message as Prompt
	Attachment *Attachment
}

// Attachment is an inline file sent with the prompt
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// CompletionResponse carries the answer text exactly as the provider sent it
type CompletionResponse struct {
	// Content is the concatenated text of the first candidate
	Content string

	// Raw is the undecoded response body
	Raw []byte

	// Model reported by the provider
	Model string

	// Provider that handled the request
	Provider string

	// Latency of the request
	Latency time.Duration
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for requests
	Timeout time.Duration

	// Additional headers
	Headers map[string]string

	// HTTPClient replaces the default client (tests, proxies)
	HTTPClient *http.Client
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 120 * time.Second,
		Headers: make(map[string]string),
	}
}

// Error codes shared by adapters
const (
	CodeHTTPError      = "HTTP_ERROR"
	CodeMarshalError   = "MARSHAL_ERROR"
	CodeRequestError   = "REQUEST_ERROR"
	CodeReadError      = "READ_ERROR"
	CodeUnmarshalError = "UNMARSHAL_ERROR"
	CodeUnknownError   = "UNKNOWN_ERROR"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message, as reported by the provider
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// BackendReason buckets the error for callers deciding whether to retry,
// switch provider or give up.
func (e *ProviderError) BackendReason() string {
	switch {
	case errors.Is(e.Cause, context.DeadlineExceeded):
		return router.ReasonTimeout
	case errors.Is(e.Cause, context.Canceled):
		return router.ReasonCanceled
	}
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return router.ReasonAuth
	case http.StatusTooManyRequests:
		return router.ReasonRateLimit
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return router.ReasonBadRequest
	case 0:
		var netErr net.Error
		if errors.As(e.Cause, &netErr) && netErr.Timeout() {
			return router.ReasonTimeout
		}
		if e.Code == CodeHTTPError || e.Code == CodeReadError {
			return router.ReasonNetwork
		}
		return router.ReasonUpstream
	}
	return router.ReasonUpstream
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable reports whether repeating the same call later may succeed
func (e *ProviderError) IsRetryable() bool {
	return e.Retryable
}

// IsRetryableStatus reports whether a status code signals a transient failure
func IsRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
