package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/upb/askllm/internal/router"
	"go.uber.org/zap"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrModelNotSupported is returned when a model is not supported by any provider
	ErrModelNotSupported = errors.New("model not supported")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry manages provider transports and the model prefixes that select
// them. Model identifiers follow the "provider/model" convention
// ("gemini/gemini-2.0-flash"); bare names fall back to prefix matching
// ("gpt-" -> openai).
type Registry struct {
	mu            sync.RWMutex
	providers     map[string]Provider
	modelPrefixes map[string]string // model prefix -> provider name
	logger        *zap.Logger
}

// NewRegistry creates a new provider registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		providers:     make(map[string]Provider),
		modelPrefixes: make(map[string]string),
		logger:        logger,
	}
}

// RegisterProvider registers a provider instance
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	if _, exists := r.providers[name]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.providers[name] = provider
	return nil
}

// RegisterModelPrefix registers a model prefix to provider mapping
// This is useful for bare model names (e.g., "gpt-" -> "openai")
func (r *Registry) RegisterModelPrefix(prefix, providerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[providerName]; !exists {
		return ErrProviderNotFound
	}

	r.modelPrefixes[strings.ToLower(prefix)] = providerName
	return nil
}

// ProviderForModel finds the provider for a model identifier and returns the
// model name the provider expects.
func (r *Registry) ProviderForModel(model string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Explicit "provider/model" form
	if name, rest, ok := strings.Cut(model, "/"); ok && rest != "" {
		if provider, exists := r.providers[strings.ToLower(name)]; exists {
			return provider, rest, nil
		}
	}

	// Longest matching prefix wins
	lower := strings.ToLower(model)
	best := ""
	for prefix := range r.modelPrefixes {
		if strings.HasPrefix(lower, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		if provider, ok := r.providers[r.modelPrefixes[best]]; ok {
			return provider, model, nil
		}
	}

	return nil, "", fmt.Errorf("%w: %s", ErrModelNotSupported, model)
}

// ValidateModel checks if a model is supported by any provider
func (r *Registry) ValidateModel(model string) error {
	_, _, err := r.ProviderForModel(model)
	return err
}

// ListProviders returns all registered provider names
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Check verifies the credential of a configured alias against its endpoint
func (r *Registry) Check(ctx context.Context, cfg router.ProviderConfig) error {
	provider, _, err := r.ProviderForModel(cfg.Model)
	if err != nil {
		return err
	}

	r.logger.Debug("checking provider credentials",
		zap.String("llm", cfg.Alias),
		zap.String("provider", provider.Name()))

	return provider.CheckCredentials(ctx, cfg.Credential, cfg.BaseURL)
}

// Call implements router.Backend: one provider call for a resolved config.
func (r *Registry) Call(ctx context.Context, cfg router.ProviderConfig, req router.Request) (*router.Reply, error) {
	provider, model, err := r.ProviderForModel(cfg.Model)
	if err != nil {
		return nil, NewProviderError("registry", "UNSUPPORTED_MODEL", err.Error(), http.StatusBadRequest, false, err)
	}

	creq := &CompletionRequest{
		Model:   model,
		APIKey:  cfg.Credential,
		BaseURL: cfg.BaseURL,
		Prompt:  req.Prompt,
	}
	if req.Attachment != nil {
		creq.Attachment = &Attachment{
			Name:     req.Attachment.Name,
			MIMEType: req.Attachment.MIMEType,
			Data:     req.Attachment.Data,
		}
	}

	r.logger.Debug("dispatching completion",
		zap.String("llm", cfg.Alias),
		zap.String("provider", provider.Name()),
		zap.String("model", model),
		zap.Int("prompt_length", len(req.Prompt)),
		zap.Bool("attachment", req.Attachment != nil))

	resp, err := provider.Complete(ctx, creq)
	if err != nil {
		return nil, err
	}
	return &router.Reply{Content: resp.Content, Raw: resp.Raw}, nil
}

// ProviderBuilder is a function that creates a provider instance
type ProviderBuilder func(config ProviderConfig) (Provider, error)

// RegistryBuilder helps build a registry with multiple providers
type RegistryBuilder struct {
	logger   *zap.Logger
	builders map[string]ProviderBuilder
	order    []string
	prefixes map[string]string
}

// NewRegistryBuilder creates a new registry builder
func NewRegistryBuilder(logger *zap.Logger) *RegistryBuilder {
	return &RegistryBuilder{
		logger:   logger,
		builders: make(map[string]ProviderBuilder),
		prefixes: make(map[string]string),
	}
}

// WithProviderBuilder registers a provider builder
func (rb *RegistryBuilder) WithProviderBuilder(name string, builder ProviderBuilder) *RegistryBuilder {
	if _, exists := rb.builders[name]; !exists {
		rb.order = append(rb.order, name)
	}
	rb.builders[name] = builder
	return rb
}

// WithModelPrefix registers a model prefix mapping
func (rb *RegistryBuilder) WithModelPrefix(prefix, providerName string) *RegistryBuilder {
	rb.prefixes[prefix] = providerName
	return rb
}

// Build creates every provider with the shared config and returns the registry
func (rb *RegistryBuilder) Build(config ProviderConfig) (*Registry, error) {
	registry := NewRegistry(rb.logger)
	for _, name := range rb.order {
		provider, err := rb.builders[name](config)
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", name, err)
		}
		if err := registry.RegisterProvider(provider); err != nil {
			return nil, fmt.Errorf("failed to register provider %s: %w", name, err)
		}
	}
	for prefix, name := range rb.prefixes {
		if err := registry.RegisterModelPrefix(prefix, name); err != nil {
			return nil, fmt.Errorf("failed to register prefix %s: %w", prefix, err)
		}
	}

	return registry, nil
}
