package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// NewHTTPClient returns config.HTTPClient or a client with config.Timeout.
func NewHTTPClient(config ProviderConfig) *http.Client {
	if config.HTTPClient != nil {
		return config.HTTPClient
	}
	return &http.Client{Timeout: config.Timeout}
}

// BaseURL picks the per-request override, then the provider config, then the default.
func BaseURL(override string, config ProviderConfig, fallback string) string {
	for _, u := range []string{override, config.BaseURL, fallback} {
		if u != "" {
			return strings.TrimRight(u, "/")
		}
	}
	return ""
}

// PostJSON marshals payload, posts it and returns the status and raw body.
// Transport failures come back as ProviderError with status 0.
func PostJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload interface{}) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, NewProviderError(provider, CodeMarshalError, "failed to marshal request", 0, false, err)
	}
	return send(ctx, client, provider, http.MethodPost, url, headers, bytes.NewReader(reqBody))
}

// GetJSON issues a GET and returns the status and raw body.
func GetJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string) (int, []byte, error) {
	return send(ctx, client, provider, http.MethodGet, url, headers, nil)
}

func send(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, body io.Reader) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, NewProviderError(provider, CodeRequestError, "failed to create request", 0, false, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, NewProviderError(provider, CodeHTTPError, "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return httpResp.StatusCode, nil, NewProviderError(provider, CodeReadError, "failed to read response", 0, true, err)
	}

	return httpResp.StatusCode, respBody, nil
}

// DataURI encodes an attachment as a data: URI.
func DataURI(att *Attachment) string {
	return "data:" + att.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(att.Data)
}

// IsImage reports whether the attachment is an image type.
func IsImage(att *Attachment) bool {
	return strings.HasPrefix(att.MIMEType, "image/")
}
