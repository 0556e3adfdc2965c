// Package router resolves a provider alias to its configured backend and
// forwards a single prompt to it, returning the backend's answer verbatim.
package router

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// emptyRetries is how many extra calls are made when a backend answers with
// no content.
const emptyRetries = 1

// ProviderConfig is one configured backend, keyed by Alias.
type ProviderConfig struct {
	Alias       string
	Model       string
	Credential  string
	BaseURL     string
	DisplayName string
}

// String never includes the credential.
func (c ProviderConfig) String() string {
	return c.Alias + "(" + c.Model + ")"
}

// Attachment is sent alongside the prompt in the same backend call.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Request is a single forwarding request.
type Request struct {
	Alias      string
	Prompt     string
	Attachment *Attachment
}

// Reply is what a Backend returns for one call.
type Reply struct {
	Content string
	Raw     []byte
}

// Response is the verbatim backend payload plus routing metadata.
type Response struct {
	Alias    string
	Model    string
	Content  string
	Raw      []byte
	Attempts int
}

// Backend performs one outbound call for a resolved configuration.
type Backend interface {
	Call(ctx context.Context, cfg ProviderConfig, req Request) (*Reply, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, cfg ProviderConfig, req Request) (*Reply, error)

// Call implements Backend.
func (f BackendFunc) Call(ctx context.Context, cfg ProviderConfig, req Request) (*Reply, error) {
	return f(ctx, cfg, req)
}

// Router maps aliases to backends. It is safe for concurrent use: nothing
// in it changes after New.
type Router struct {
	table   *Table
	backend Backend
}

// New creates a router over an already-built table.
func New(table *Table, backend Backend) *Router {
	if table == nil {
		table = &Table{entries: map[string]ProviderConfig{}}
	}
	return &Router{table: table, backend: backend}
}

// Resolve finds the configuration for alias, ignoring case.
func (r *Router) Resolve(alias string) (ProviderConfig, error) {
	return r.table.Lookup(alias)
}

// Aliases returns the configured aliases in sorted order.
func (r *Router) Aliases() []string {
	return r.table.Aliases()
}

// Configs returns the configured providers in alias order.
func (r *Router) Configs() []ProviderConfig {
	return r.table.Configs()
}

// Forward resolves req.Alias and issues the backend call. A non-empty reply is
// returned exactly as received. An empty reply is retried once; backend
// failures are never retried.
func (r *Router) Forward(ctx context.Context, req Request) (*Response, error) {
	cfg, err := r.Resolve(req.Alias)
	if err != nil {
		return nil, err
	}
	if req.Prompt == "" {
		return nil, InvalidRequestError(cfg.Alias, "prompt cannot be empty")
	}

	attempts := 0
	for attempts <= emptyRetries {
		attempts++
		reply, err := r.backend.Call(ctx, cfg, req)
		if err != nil {
			bErr := BackendError(cfg.Alias, classify(ctx, err), err)
			bErr.Attempts = attempts
			return nil, bErr
		}
		if reply == nil || reply.Content == "" {
			continue
		}
		return &Response{
			Alias:    cfg.Alias,
			Model:    cfg.Model,
			Content:  reply.Content,
			Raw:      reply.Raw,
			Attempts: attempts,
		}, nil
	}

	return nil, EmptyResponseError(cfg.Alias, attempts)
}

// reasoner is implemented by transport errors that know their own category.
type reasoner interface {
	BackendReason() string
}

func classify(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	}
	var r reasoner
	if errors.As(err, &r) {
		if reason := r.BackendReason(); reason != "" {
			return reason
		}
	}
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ReasonTimeout
		}
		return ReasonCanceled
	}
	return ReasonUpstream
}

// normalize is the single place alias case folding happens.
func normalize(alias string) string {
	return strings.ToLower(alias)
}

func sortedKeys(m map[string]ProviderConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
