package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/upb/askllm/services/providers"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Adapter implements the Provider interface for the Gemini generateContent API.
// Auth uses the x-goog-api-key header; attachments go inline as base64.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewAdapter creates a new Gemini adapter
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

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) headers(apiKey string) map[string]string {
	h := map[string]string{"x-goog-api-key": apiKey}
	for k, v := range a.config.Headers {
		h[k] = v
	}
	return h
}

func (a *Adapter) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	startTime := time.Now()

	parts := []part{{Text: req.Prompt}}
	if att := req.Attachment; att != nil {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: att.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(att.Data),
		}})
	}
	body := generateRequest{Contents: []content{{Role: "user", Parts: parts}}}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", providers.BaseURL(req.BaseURL, a.config, defaultBaseURL), req.Model)
	status, raw, err := providers.PostJSON(ctx, a.httpClient, a.Name(), endpoint, a.headers(req.APIKey), body)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, a.mapError(status, raw)
	}

	var genResp generateResponse
	if err := json.Unmarshal(raw, &genResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeUnmarshalError, "failed to unmarshal response", status, false, err)
	}

	resp := &providers.CompletionResponse{
		Raw:      raw,
		Model:    genResp.ModelVersion,
		Provider: a.Name(),
		Latency:  time.Since(startTime),
	}
	if len(genResp.Candidates) > 0 {
		var text strings.Builder
		for _, p := range genResp.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
		resp.Content = text.String()
	}
	return resp, nil
}

// CheckCredentials lists models with apiKey against baseURL, or the
// configured endpoint when baseURL is empty
func (a *Adapter) CheckCredentials(ctx context.Context, apiKey, baseURL string) error {
	endpoint := providers.BaseURL(baseURL, a.config, defaultBaseURL) + "/v1beta/models"
	status, raw, err := providers.GetJSON(ctx, a.httpClient, a.Name(), endpoint, a.headers(apiKey))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return a.mapError(status, raw)
	}
	return nil
}

func (a *Adapter) mapError(status int, raw []byte) error {
	retryable := providers.IsRetryableStatus(status)

	var errResp errorResponse
	if err := json.Unmarshal(raw, &errResp); err != nil || errResp.Error.Message == "" {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return providers.NewProviderError(a.Name(), providers.CodeUnknownError, msg, status, retryable, errors.New(msg))
	}

	code := errResp.Error.Status
	if code == "" {
		code = providers.CodeUnknownError
	}
	return providers.NewProviderError(a.Name(), code, errResp.Error.Message, status, retryable, errors.New(errResp.Error.Message))
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index"`
}

type generateResponse struct {
	Candidates   []candidate `json:"candidates"`
	ModelVersion string      `json:"modelVersion,omitempty"`
	ResponseID   string      `json:"responseId,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
