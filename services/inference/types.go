package inference

import (
	"github.com/upb/askllm/models"
)

// AskRequest is one prompt for one configured provider
type AskRequest struct {
	// LLM is the provider alias, matched case-insensitively
	LLM string `json:"llm" validate:"required,alias"`

	// Prompt is forwarded unmodified
	Prompt string `json:"prompt" validate:"required"`

	// Attachment is optional and travels in the same backend call
	Attachment *AttachmentPayload `json:"attachment,omitempty"`

	// Request metadata, set by the transport
	RequestID string           `json:"-"`
	Transport models.Transport `json:"-"`
}

// AttachmentPayload is a base64 encoded file
type AttachmentPayload struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type" validate:"required,mimetype"`
	Data     string `json:"data" validate:"required,base64"`
}

// AskResponse carries the backend's answer verbatim
type AskResponse struct {
	LLM       string `json:"llm"`
	Model     string `json:"model"`
	Response  string `json:"response"`
	Attempts  int    `json:"attempts"`
	LatencyMs int64  `json:"latency_ms"`
}

// ProviderInfo describes one configured provider without its credential
type ProviderInfo struct {
	LLM       string `json:"llm"`
	Name      string `json:"name,omitempty"`
	Model     string `json:"model"`
	CustomURL bool   `json:"custom_base_url"`
}
