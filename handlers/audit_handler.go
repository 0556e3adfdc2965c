package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/upb/askllm/models"
	"github.com/upb/askllm/utils"
)

// AuditService defines the read side of the audit ledger
type AuditService interface {
	RecentAudit(ctx context.Context, limit int) ([]*models.AuditEntry, error)
	AuditSummary(ctx context.Context) (map[string]int, error)
}

// AuditHandler serves audit ledger queries
type AuditHandler struct {
	service AuditService
	logger  *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: service, logger: logger}
}

// HandleRecent handles GET /api/v1/audit?limit=N
func (h *AuditHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			_ = utils.WriteBadRequest(w, "limit must be a positive integer", map[string]interface{}{"limit": raw})
			return
		}
		limit = n
	}

	entries, err := h.service.RecentAudit(r.Context(), limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, entries); err != nil {
		h.logger.Error("failed to write audit response", zap.Error(err))
	}
}

// HandleSummary handles GET /api/v1/audit/summary
func (h *AuditHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.AuditSummary(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, counts); err != nil {
		h.logger.Error("failed to write audit summary", zap.Error(err))
	}
}
