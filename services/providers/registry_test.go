package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/askllm/internal/router"
)

func newTestRegistry(t *testing.T) (*Registry, *MockProvider, *MockProvider) {
	t.Helper()

	openai := NewMockProvider("openai")
	gemini := NewMockProvider("gemini")

	registry, err := NewRegistryBuilder(nil).
		WithProviderBuilder("openai", func(ProviderConfig) (Provider, error) { return openai, nil }).
		WithProviderBuilder("gemini", func(ProviderConfig) (Provider, error) { return gemini, nil }).
		WithModelPrefix("gpt-", "openai").
		WithModelPrefix("gpt-4o-gem", "gemini").
		WithModelPrefix("Gemini-", "gemini").
		Build(DefaultProviderConfig())
	require.NoError(t, err)

	return registry, openai, gemini
}

func TestRegistry_RegisterProvider(t *testing.T) {
	registry := NewRegistry(nil)

	require.NoError(t, registry.RegisterProvider(NewMockProvider("openai")))
	assert.ErrorIs(t, registry.RegisterProvider(NewMockProvider("openai")), ErrProviderAlreadyRegistered)
	assert.Error(t, registry.RegisterProvider(nil))
	assert.Error(t, registry.RegisterProvider(NewMockProvider("")))

	assert.ErrorIs(t, registry.RegisterModelPrefix("claude-", "anthropic"), ErrProviderNotFound)
	assert.Equal(t, []string{"openai"}, registry.ListProviders())
}

func TestRegistry_ProviderForModel(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	tests := []struct {
		name         string
		model        string
		wantProvider string
		wantModel    string
	}{
		{"explicit provider", "gemini/gemini-2.0-flash", "gemini", "gemini-2.0-flash"},
		{"explicit provider is case-insensitive", "OpenAI/gpt-4o", "openai", "gpt-4o"},
		{"bare prefix", "gpt-4o-mini", "openai", "gpt-4o-mini"},
		{"longest prefix wins", "gpt-4o-gemlike", "gemini", "gpt-4o-gemlike"},
		{"prefix is case-insensitive", "GEMINI-1.5-pro", "gemini", "GEMINI-1.5-pro"},
		{"unknown provider segment falls back to prefix", "gpt-4o/ft-123", "openai", "gpt-4o/ft-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model, err := registry.ProviderForModel(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, provider.Name())
			assert.Equal(t, tt.wantModel, model)
		})
	}

	_, _, err := registry.ProviderForModel("llama3")
	assert.ErrorIs(t, err, ErrModelNotSupported)
	assert.Error(t, registry.ValidateModel("mistral/large"))
}

func TestRegistry_ListProviders(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	assert.Equal(t, []string{"gemini", "openai"}, registry.ListProviders())
}

func TestRegistry_Call(t *testing.T) {
	registry, openai, gemini := newTestRegistry(t)
	gemini.content = "4"

	cfg := router.ProviderConfig{
		Alias:      "gemini",
		Model:      "gemini/gemini-2.0-flash",
		Credential: "k-123",
		BaseURL:    "http://localhost:9999",
	}
	req := router.Request{
		Alias:      "gemini",
		Prompt:     "2+2?",
		Attachment: &router.Attachment{Name: "a.txt", MIMEType: "text/plain", Data: []byte("hi")},
	}

	reply, err := registry.Call(context.Background(), cfg, req)
	require.NoError(t, err)
	assert.Equal(t, "4", reply.Content)
	assert.NotEmpty(t, reply.Raw)

	require.NotNil(t, gemini.lastRequest)
	assert.Equal(t, "gemini-2.0-flash", gemini.lastRequest.Model)
	assert.Equal(t, "k-123", gemini.lastRequest.APIKey)
	assert.Equal(t, "http://localhost:9999", gemini.lastRequest.BaseURL)
	assert.Equal(t, "2+2?", gemini.lastRequest.Prompt)
	require.NotNil(t, gemini.lastRequest.Attachment)
	assert.Equal(t, []byte("hi"), gemini.lastRequest.Attachment.Data)
	assert.Equal(t, 0, openai.calls)
}

func TestRegistry_Call_Errors(t *testing.T) {
	registry, openai, _ := newTestRegistry(t)

	t.Run("unsupported model", func(t *testing.T) {
		_, err := registry.Call(context.Background(), router.ProviderConfig{Alias: "x", Model: "llama3"}, router.Request{Prompt: "p"})

		var provErr *ProviderError
		require.True(t, errors.As(err, &provErr))
		assert.Equal(t, router.ReasonBadRequest, provErr.BackendReason())
		assert.ErrorIs(t, err, ErrModelNotSupported)
	})

	t.Run("provider error passes through", func(t *testing.T) {
		openai.err = NewProviderError("openai", "invalid_api_key", "Incorrect API key provided", 401, false, nil)
		defer func() { openai.err = nil }()

		_, err := registry.Call(context.Background(), router.ProviderConfig{Alias: "gpt", Model: "gpt-4o"}, router.Request{Prompt: "p"})

		var provErr *ProviderError
		require.True(t, errors.As(err, &provErr))
		assert.Equal(t, router.ReasonAuth, provErr.BackendReason())
	})
}

func TestRegistry_Check(t *testing.T) {
	registry, openai, gemini := newTestRegistry(t)

	err := registry.Check(context.Background(), router.ProviderConfig{
		Alias:      "gem",
		Model:      "gemini/gemini-2.0-flash",
		Credential: "k-123",
		BaseURL:    "http://localhost:9999",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", gemini.checkedURL)
	assert.Empty(t, openai.checkedURL)

	openai.credErr = NewProviderError("openai", "invalid_api_key", "Incorrect API key provided", 401, false, nil)
	err = registry.Check(context.Background(), router.ProviderConfig{Alias: "gpt", Model: "gpt-4o", Credential: "stale"})
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, router.ReasonAuth, provErr.BackendReason())

	err = registry.Check(context.Background(), router.ProviderConfig{Alias: "x", Model: "llama3", Credential: "k"})
	assert.ErrorIs(t, err, ErrModelNotSupported)
}

func TestRegistry_BackendThroughRouter(t *testing.T) {
	registry, openai, _ := newTestRegistry(t)
	openai.content = ""

	table, err := router.NewTable(router.ProviderConfig{Alias: "GPT", Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = router.New(table, registry).Forward(context.Background(), router.Request{Alias: "gpt", Prompt: "hi"})
	assert.True(t, router.IsEmptyResponse(err))
	assert.Equal(t, 2, openai.calls)
}

func TestRegistryBuilder_BuildError(t *testing.T) {
	_, err := NewRegistryBuilder(nil).
		WithProviderBuilder("broken", func(ProviderConfig) (Provider, error) { return nil, errors.New("no key") }).
		Build(DefaultProviderConfig())
	assert.ErrorContains(t, err, "broken")

	_, err = NewRegistryBuilder(nil).
		WithProviderBuilder("openai", func(ProviderConfig) (Provider, error) { return NewMockProvider("openai"), nil }).
		WithModelPrefix("claude-", "anthropic").
		Build(DefaultProviderConfig())
	assert.ErrorIs(t, err, ErrProviderNotFound)
}
