package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/askllm/internal/router"
	"github.com/upb/askllm/middleware"
	"github.com/upb/askllm/models"
	"github.com/upb/askllm/services"
	"github.com/upb/askllm/services/inference"
)

// MockInferenceService is a mock implementation of InferenceService
type MockInferenceService struct {
	mock.Mock
}

func (m *MockInferenceService) Ask(ctx context.Context, req *inference.AskRequest) (*inference.AskResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inference.AskResponse), args.Error(1)
}

func (m *MockInferenceService) Providers() []inference.ProviderInfo {
	return m.Called().Get(0).([]inference.ProviderInfo)
}

func newAskRequest(t *testing.T, body interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithRequestID(req.Context(), "req-123"))
}

func TestHandleAsk(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful ask", func(t *testing.T) {
		mockService := new(MockInferenceService)
		handler := NewInferenceHandler(mockService, 0, logger)

		mockService.On("Ask", mock.Anything, mock.MatchedBy(func(req *inference.AskRequest) bool {
			return req.LLM == "gemini" &&
				req.Prompt == "2+2?" &&
				req.RequestID == "req-123" &&
				req.Transport == models.TransportHTTP
		})).Return(&inference.AskResponse{
			LLM:      "gemini",
			Model:    "gemini/gemini-2.0-flash",
			Response: "4",
			Attempts: 1,
		}, nil)

		w := httptest.NewRecorder()
		handler.HandleAsk(w, newAskRequest(t, map[string]string{"llm": "gemini", "prompt": "2+2?"}))

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data inference.AskResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "4", response.Data.Response)
		assert.Equal(t, 1, response.Data.Attempts)
		mockService.AssertExpectations(t)
	})

	t.Run("attachment is passed to the service", func(t *testing.T) {
		mockService := new(MockInferenceService)
		handler := NewInferenceHandler(mockService, 0, logger)

		mockService.On("Ask", mock.Anything, mock.MatchedBy(func(req *inference.AskRequest) bool {
			return req.Attachment != nil &&
				req.Attachment.MIMEType == "application/pdf" &&
				req.Attachment.Data == "JVBERg=="
		})).Return(&inference.AskResponse{Response: "a pdf"}, nil)

		w := httptest.NewRecorder()
		handler.HandleAsk(w, newAskRequest(t, map[string]interface{}{
			"llm":    "gpt",
			"prompt": "summarize",
			"attachment": map[string]string{
				"name":      "a.pdf",
				"mime_type": "application/pdf",
				"data":      "JVBERg==",
			},
		}))

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("invalid json", func(t *testing.T) {
		mockService := new(MockInferenceService)
		handler := NewInferenceHandler(mockService, 0, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		handler.HandleAsk(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything)
	})

	t.Run("body too large", func(t *testing.T) {
		mockService := new(MockInferenceService)
		handler := NewInferenceHandler(mockService, 32, logger)

		w := httptest.NewRecorder()
		handler.HandleAsk(w, newAskRequest(t, map[string]string{"llm": "gemini", "prompt": strings.Repeat("x", 64)}))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		mockService.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything)
	})

	t.Run("service errors are mapped", func(t *testing.T) {
		tests := []struct {
			name   string
			err    error
			status int
		}{
			{"unknown provider", services.FromRouterError(router.UnknownProviderError("nope")), http.StatusNotFound},
			{"empty response", services.FromRouterError(router.EmptyResponseError("gemini", 2)), http.StatusBadGateway},
			{"rate limited", services.FromRouterError(router.BackendError("gemini", router.ReasonRateLimit, errors.New("slow down"))), http.StatusTooManyRequests},
			{"validation", services.ErrInvalidInput, http.StatusBadRequest},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				mockService := new(MockInferenceService)
				handler := NewInferenceHandler(mockService, 0, logger)
				mockService.On("Ask", mock.Anything, mock.Anything).Return(nil, tt.err)

				w := httptest.NewRecorder()
				handler.HandleAsk(w, newAskRequest(t, map[string]string{"llm": "gemini", "prompt": "hi"}))

				assert.Equal(t, tt.status, w.Code)
			})
		}
	})
}

func TestHandleListProviders(t *testing.T) {
	mockService := new(MockInferenceService)
	handler := NewInferenceHandler(mockService, 0, zap.NewNop())

	mockService.On("Providers").Return([]inference.ProviderInfo{
		{LLM: "gemini", Model: "gemini/gemini-2.0-flash"},
		{LLM: "gpt", Model: "gpt-4o", CustomURL: true},
	})

	w := httptest.NewRecorder()
	handler.HandleListProviders(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "key", "credentials must never be listed")

	var response struct {
		Data []inference.ProviderInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Data, 2)
	assert.Equal(t, "gemini", response.Data[0].LLM)
	assert.True(t, response.Data[1].CustomURL)
}
