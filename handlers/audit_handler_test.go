package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/askllm/models"
	"github.com/upb/askllm/services"
)

// MockAuditService is a mock implementation of AuditService
type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) RecentAudit(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditEntry), args.Error(1)
}

func (m *MockAuditService) AuditSummary(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func TestHandleRecentAudit(t *testing.T) {
	logger := zap.NewNop()

	t.Run("returns entries", func(t *testing.T) {
		mockService := new(MockAuditService)
		handler := NewAuditHandler(mockService, logger)

		entry := models.NewAuditEntry(models.TransportHTTP, "gemini")
		mockService.On("RecentAudit", mock.Anything, 5).Return([]*models.AuditEntry{entry}, nil)

		w := httptest.NewRecorder()
		handler.HandleRecent(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit?limit=5", nil))

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data []models.AuditEntry `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		require.Len(t, response.Data, 1)
		assert.Equal(t, entry.ID, response.Data[0].ID)
		assert.Equal(t, "gemini", response.Data[0].Alias)
	})

	t.Run("default limit", func(t *testing.T) {
		mockService := new(MockAuditService)
		handler := NewAuditHandler(mockService, logger)
		mockService.On("RecentAudit", mock.Anything, 0).Return([]*models.AuditEntry{}, nil)

		w := httptest.NewRecorder()
		handler.HandleRecent(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, raw := range []string{"abc", "0", "-3"} {
			mockService := new(MockAuditService)
			handler := NewAuditHandler(mockService, logger)

			w := httptest.NewRecorder()
			handler.HandleRecent(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit?limit="+raw, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code, raw)
			mockService.AssertNotCalled(t, "RecentAudit", mock.Anything, mock.Anything)
		}
	})

	t.Run("disabled ledger", func(t *testing.T) {
		mockService := new(MockAuditService)
		handler := NewAuditHandler(mockService, logger)
		mockService.On("RecentAudit", mock.Anything, 0).Return(nil, services.ErrAuditDisabled)

		w := httptest.NewRecorder()
		handler.HandleRecent(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleAuditSummary(t *testing.T) {
	mockService := new(MockAuditService)
	handler := NewAuditHandler(mockService, zap.NewNop())
	mockService.On("AuditSummary", mock.Anything).Return(map[string]int{"gemini": 7}, nil)

	w := httptest.NewRecorder()
	handler.HandleSummary(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit/summary", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 7, response.Data["gemini"])
}
