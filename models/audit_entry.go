package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/upb/askllm/internal/router"
)

// Transport names the surface a forwarded request arrived on
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportRPC  Transport = "rpc"
	TransportCLI  Transport = "cli"
)

// AuditStatus is the outcome recorded for a forward
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// AuditEntry is one passive record of a forwarded request. Prompts and
// responses are never stored, only their lengths.
type AuditEntry struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	Timestamp      time.Time   `json:"timestamp" db:"timestamp"`
	RequestID      string      `json:"request_id,omitempty" db:"request_id"`
	Transport      Transport   `json:"transport" db:"transport"`
	Alias          string      `json:"llm" db:"alias"`
	Model          string      `json:"model,omitempty" db:"model"`
	Status         AuditStatus `json:"status" db:"status"`
	ErrorKind      string      `json:"error_kind,omitempty" db:"error_kind"`
	Reason         string      `json:"reason,omitempty" db:"reason"`
	Attempts       int         `json:"attempts" db:"attempts"`
	PromptLength   int         `json:"prompt_length" db:"prompt_length"`
	ResponseLength int         `json:"response_length" db:"response_length"`
	HasAttachment  bool        `json:"has_attachment" db:"has_attachment"`
	LatencyMs      int64       `json:"latency_ms" db:"latency_ms"`
	ErrorMessage   string      `json:"error_message,omitempty" db:"error_message"`
}

// TableName returns the table name for the AuditEntry model
func (AuditEntry) TableName() string {
	return "audit_entries"
}

// NewAuditEntry creates an entry for a request on alias
func NewAuditEntry(transport Transport, alias string) *AuditEntry {
	return &AuditEntry{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Transport: transport,
		Alias:     alias,
	}
}

// WithRequest sets the request ID and what was sent
func (a *AuditEntry) WithRequest(requestID string, promptLength int, hasAttachment bool) *AuditEntry {
	a.RequestID = requestID
	a.PromptLength = promptLength
	a.HasAttachment = hasAttachment
	return a
}

// WithLatency sets the elapsed time
func (a *AuditEntry) WithLatency(d time.Duration) *AuditEntry {
	a.LatencyMs = d.Milliseconds()
	return a
}

// WithResult fills the outcome from a Forward result
func (a *AuditEntry) WithResult(resp *router.Response, err error) *AuditEntry {
	if err != nil {
		a.Status = AuditStatusFailed
		a.ErrorKind = string(router.KindOf(err))
		if a.ErrorKind == "" {
			a.ErrorKind = "internal"
		}
		a.Reason = router.ReasonOf(err)
		a.Attempts = router.AttemptsOf(err)
		a.ErrorMessage = err.Error()
		return a
	}

	a.Status = AuditStatusSuccess
	if resp != nil {
		a.Alias = resp.Alias
		a.Model = resp.Model
		a.Attempts = resp.Attempts
		a.ResponseLength = len(resp.Content)
	}
	return a
}
