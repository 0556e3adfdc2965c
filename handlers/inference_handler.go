package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/askllm/middleware"
	"github.com/upb/askllm/models"
	"github.com/upb/askllm/services/inference"
	"github.com/upb/askllm/utils"
)

// InferenceService defines the dispatch operations the HTTP API needs
type InferenceService interface {
	Ask(ctx context.Context, req *inference.AskRequest) (*inference.AskResponse, error)
	Providers() []inference.ProviderInfo
}

// InferenceHandler handles ask and provider listing requests
type InferenceHandler struct {
	service      InferenceService
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewInferenceHandler creates a new InferenceHandler. maxBodyBytes of zero
// leaves the body unbounded.
func NewInferenceHandler(service InferenceService, maxBodyBytes int64, logger *zap.Logger) *InferenceHandler {
	return &InferenceHandler{
		service:      service,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// HandleAsk handles POST /api/v1/ask
func (h *InferenceHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var askReq inference.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&askReq); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return
		}
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	askReq.RequestID = requestID
	askReq.Transport = models.TransportHTTP

	result, err := h.service.Ask(ctx, &askReq)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandleListProviders handles GET /api/v1/providers
func (h *InferenceHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.service.Providers()); err != nil {
		h.logger.Error("failed to write providers response", zap.Error(err))
	}
}
