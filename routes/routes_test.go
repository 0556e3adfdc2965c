package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/askllm/app"
	"github.com/upb/askllm/config"
	"github.com/upb/askllm/internal/observability"
	"github.com/upb/askllm/internal/router"
	"github.com/upb/askllm/middleware"
	"github.com/upb/askllm/services/audit"
	"github.com/upb/askllm/services/inference"
)

func newTestDeps(t *testing.T, withMetrics bool) *app.Dependencies {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			WriteTimeout: 5 * time.Second,
			CORSOrigins:  []string{"http://localhost:3000"},
		},
		Limits: config.LimitsConfig{MaxPromptLength: 100, MaxAttachmentBytes: 1024},
	}

	table, err := router.NewTable(router.ProviderConfig{Alias: "gemini", Model: "gemini/gemini-2.0-flash", Credential: "k", DisplayName: "GEMINI"})
	require.NoError(t, err)
	backend := router.BackendFunc(func(ctx context.Context, cfg router.ProviderConfig, req router.Request) (*router.Reply, error) {
		return &router.Reply{Content: "echo: " + req.Prompt}, nil
	})
	r := router.New(table, backend)

	var metrics *observability.Metrics
	if withMetrics {
		metrics = observability.NewMetrics()
	}

	logger := zap.NewNop()
	return &app.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Router:    r,
		Audit:     audit.NoopRecorder{},
		Inference: inference.NewInferenceService(r, audit.NoopRecorder{}, metrics, inference.Options{MaxPromptLength: 100, MaxAttachmentBytes: 1024}, logger),
	}
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSetupRoutes(t *testing.T) {
	h := SetupRoutes(newTestDeps(t, true))

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "health", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK, wantBody: "healthy"},
		{name: "readiness", method: http.MethodGet, path: "/readyz", wantStatus: http.StatusOK, wantBody: "disabled"},
		{name: "ask", method: http.MethodPost, path: "/api/v1/ask", body: `{"llm":"GEMINI","prompt":"hi"}`, wantStatus: http.StatusOK, wantBody: "echo: hi"},
		{name: "ask unknown provider", method: http.MethodPost, path: "/api/v1/ask", body: `{"llm":"nope","prompt":"hi"}`, wantStatus: http.StatusNotFound, wantBody: "nope"},
		{name: "ask bad json", method: http.MethodPost, path: "/api/v1/ask", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "providers", method: http.MethodGet, path: "/api/v1/providers", wantStatus: http.StatusOK, wantBody: "gemini-2.0-flash"},
		{name: "audit disabled", method: http.MethodGet, path: "/api/v1/audit", wantStatus: http.StatusNotFound},
		{name: "audit summary disabled", method: http.MethodGet, path: "/api/v1/audit/summary", wantStatus: http.StatusNotFound},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK, wantBody: "askllm_forward_total"},
		{name: "unknown route", method: http.MethodGet, path: "/nowhere", wantStatus: http.StatusNotFound, wantBody: "endpoint not found"},
		{name: "wrong method", method: http.MethodGet, path: "/api/v1/ask", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestSetupRoutes_RequestIDHeader(t *testing.T) {
	h := SetupRoutes(newTestDeps(t, false))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))
}

func TestSetupRoutes_MetricsDisabled(t *testing.T) {
	h := SetupRoutes(newTestDeps(t, false))

	w := serve(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetupRoutes_AskBodyLimit(t *testing.T) {
	h := SetupRoutes(newTestDeps(t, false))

	huge := strings.Repeat("a", int(MaxBodyBytes(100, 1024))+1)
	body, err := json.Marshal(map[string]string{"llm": "gemini", "prompt": huge})
	require.NoError(t, err)

	w := serve(h, http.MethodPost, "/api/v1/ask", string(body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSetupRoutes_CORS(t *testing.T) {
	h := SetupRoutes(newTestDeps(t, false))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ask", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMaxBodyBytes(t *testing.T) {
	assert.Equal(t, int64(100+4+bodyOverhead), MaxBodyBytes(100, 3))
	assert.Equal(t, int64(bodyOverhead), MaxBodyBytes(0, 0))
}
