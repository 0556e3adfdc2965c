package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/upb/askllm/services/providers"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Adapter implements the Provider interface for the Anthropic Messages API
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new Anthropic adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	return &Adapter{
		config:     config,
		httpClient: providers.NewHTTPClient(config),
	}
}

// Build is a providers.ProviderBuilder
func Build(config providers.ProviderConfig) (providers.Provider, error) {
	return NewAdapter(config), nil
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return "anthropic"
}

func (a *Adapter) headers(apiKey string) map[string]string {
	h := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": apiVersion,
	}
	for k, v := range a.config.Headers {
		h[k] = v
	}
	return h
}

// Complete sends the prompt as a single user turn
func (a *Adapter) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	startTime := time.Now()

	url := providers.BaseURL(req.BaseURL, a.config, defaultBaseURL) + "/v1/messages"
	status, body, err := providers.PostJSON(ctx, a.httpClient, a.Name(), url, a.headers(req.APIKey), buildRequest(req))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, a.handleErrorResponse(status, body)
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeUnmarshalError, "failed to unmarshal response", status, false, err)
	}

	var text strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &providers.CompletionResponse{
		Content:  text.String(),
		Raw:      body,
		Model:    msgResp.Model,
		Provider: a.Name(),
		Latency:  time.Since(startTime),
	}, nil
}

// CheckCredentials lists models with apiKey against baseURL, or the
// configured endpoint when baseURL is empty
func (a *Adapter) CheckCredentials(ctx context.Context, apiKey, baseURL string) error {
	url := providers.BaseURL(baseURL, a.config, defaultBaseURL) + "/v1/models"
	status, body, err := providers.GetJSON(ctx, a.httpClient, a.Name(), url, a.headers(apiKey))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return a.handleErrorResponse(status, body)
	}
	return nil
}

func buildRequest(req *providers.CompletionRequest) *messagesRequest {
	blocks := []contentBlock{}
	if att := req.Attachment; att != nil {
		blockType := "document"
		if providers.IsImage(att) {
			blockType = "image"
		}
		blocks = append(blocks, contentBlock{
			Type: blockType,
			Source: &blockSource{
				Type:      "base64",
				MediaType: att.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(att.Data),
			},
		})
	}
	blocks = append(blocks, contentBlock{Type: "text", Text: req.Prompt})

	return &messagesRequest{
		Model:     req.Model,
		MaxTokens: defaultMaxTokens,
		Messages:  []message{{Role: "user", Content: blocks}},
	}
}

func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := providers.IsRetryableStatus(statusCode) || statusCode == 529

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return providers.NewProviderError(a.Name(), providers.CodeUnknownError, msg, statusCode, retryable, errors.New(msg))
	}

	return providers.NewProviderError(a.Name(), errResp.Error.Type, errResp.Error.Message, statusCode, retryable, errors.New(errResp.Error.Message))
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *blockSource `json:"source,omitempty"`
}

type blockSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
