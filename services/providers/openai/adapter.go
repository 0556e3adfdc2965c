package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/upb/askllm/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
)

// OpenAIAdapter implements the Provider interface for OpenAI and any
// endpoint that speaks the chat completions API.
type OpenAIAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	return &OpenAIAdapter{
		config:     config,
		httpClient: providers.NewHTTPClient(config),
	}
}

// Build is a providers.ProviderBuilder
func Build(config providers.ProviderConfig) (providers.Provider, error) {
	return NewOpenAIAdapter(config), nil
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Complete performs a single chat completion request
func (a *OpenAIAdapter) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	startTime := time.Now()

	url := providers.BaseURL(req.BaseURL, a.config, defaultBaseURL) + "/chat/completions"
	status, body, err := providers.PostJSON(ctx, a.httpClient, a.Name(), url, a.headers(req.APIKey), a.buildOpenAIRequest(req))
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, a.handleErrorResponse(status, body)
	}

	var openaiResp OpenAIChatResponse
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeUnmarshalError, "failed to unmarshal response", status, false, err)
	}

	resp := &providers.CompletionResponse{
		Raw:      body,
		Model:    openaiResp.Model,
		Provider: a.Name(),
		Latency:  time.Since(startTime),
	}
	if len(openaiResp.Choices) > 0 && openaiResp.Choices[0].Message.Content != nil {
		resp.Content = *openaiResp.Choices[0].Message.Content
	}

	return resp, nil
}

// CheckCredentials lists models with apiKey against baseURL, or the
// configured endpoint when baseURL is empty
func (a *OpenAIAdapter) CheckCredentials(ctx context.Context, apiKey, baseURL string) error {
	url := providers.BaseURL(baseURL, a.config, defaultBaseURL) + "/models"
	status, body, err := providers.GetJSON(ctx, a.httpClient, a.Name(), url, a.headers(apiKey))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return a.handleErrorResponse(status, body)
	}
	return nil
}

func (a *OpenAIAdapter) headers(apiKey string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + apiKey}
	for k, v := range a.config.Headers {
		h[k] = v
	}
	return h
}

// buildOpenAIRequest converts the prompt and attachment to a single user message
func (a *OpenAIAdapter) buildOpenAIRequest(req *providers.CompletionRequest) *OpenAIChatRequest {
	msg := OpenAIRequestMessage{Role: "user", Content: req.Prompt}

	if att := req.Attachment; att != nil {
		parts := []OpenAIContentPart{{Type: "text", Text: req.Prompt}}
		if providers.IsImage(att) {
			parts = append(parts, OpenAIContentPart{
				Type:     "image_url",
				ImageURL: &OpenAIImageURL{URL: providers.DataURI(att)},
			})
		} else {
			parts = append(parts, OpenAIContentPart{
				Type: "file",
				File: &OpenAIFile{Filename: att.Name, FileData: providers.DataURI(att)},
			})
		}
		msg.Content = parts
	}

	return &OpenAIChatRequest{
		Model:    req.Model,
		Messages: []OpenAIRequestMessage{msg},
	}
}

// handleErrorResponse keeps the provider's own message
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := providers.IsRetryableStatus(statusCode)

	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return providers.NewProviderError(a.Name(), providers.CodeUnknownError, msg, statusCode, retryable, errors.New(msg))
	}

	code := errResp.Error.Type
	if code == "" {
		code = providers.CodeUnknownError
	}

	return providers.NewProviderError(
		a.Name(),
		code,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model    string                 `json:"model"`
	Messages []OpenAIRequestMessage `json:"messages"`
}

// OpenAIRequestMessage content is a string, or []OpenAIContentPart with an attachment
type OpenAIRequestMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type OpenAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *OpenAIImageURL `json:"image_url,omitempty"`
	File     *OpenAIFile     `json:"file,omitempty"`
}

type OpenAIImageURL struct {
	URL string `json:"url"`
}

type OpenAIFile struct {
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data"`
}

type OpenAIMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
