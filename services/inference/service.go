package inference

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/upb/askllm/internal/observability"
	"github.com/upb/askllm/internal/router"
	"github.com/upb/askllm/models"
	"github.com/upb/askllm/services"
	"github.com/upb/askllm/services/audit"
	"github.com/upb/askllm/utils"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

// UnknownAliasLabel is the metric label shared by every alias that resolves
// to no configured provider
const UnknownAliasLabel = "unknown"

// Options bounds what a caller may send
type Options struct {
	MaxPromptLength    int
	MaxAttachmentBytes int
	RequestTimeout     time.Duration
}

// InferenceService is the dispatch layer shared by every transport. It
// validates input, applies the request timeout, forwards through the router
// and records the outcome.
type InferenceService struct {
	router   *router.Router
	recorder audit.Recorder
	metrics  *observability.Metrics
	opts     Options
	logger   *zap.Logger
}

// NewInferenceService creates a new inference service with all dependencies
func NewInferenceService(
	r *router.Router,
	recorder audit.Recorder,
	metrics *observability.Metrics,
	opts Options,
	logger *zap.Logger,
) *InferenceService {
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InferenceService{
		router:   r,
		recorder: recorder,
		metrics:  metrics,
		opts:     opts,
		logger:   logger,
	}
}

// Ask forwards one prompt and returns the backend's answer unmodified
func (s *InferenceService) Ask(ctx context.Context, req *AskRequest) (*AskResponse, error) {
	if req == nil {
		return nil, services.ErrInvalidInput
	}
	start := time.Now()

	fwd, err := s.buildForward(req)
	if err != nil {
		s.logger.Debug("rejected ask request",
			zap.String("request_id", req.RequestID),
			zap.String("llm", req.LLM),
			zap.Error(err))
		return nil, err
	}

	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	resp, fwdErr := s.router.Forward(ctx, fwd)
	elapsed := time.Since(start)

	s.record(ctx, req, resp, fwdErr, elapsed)

	if fwdErr != nil {
		s.logger.Warn("forward failed",
			zap.String("request_id", req.RequestID),
			zap.String("llm", req.LLM),
			zap.String("kind", string(router.KindOf(fwdErr))),
			zap.String("reason", router.ReasonOf(fwdErr)),
			zap.Int("attempts", router.AttemptsOf(fwdErr)),
			zap.Duration("latency", elapsed),
			zap.Error(fwdErr))
		return nil, services.FromRouterError(fwdErr)
	}

	s.logger.Info("forward completed",
		zap.String("request_id", req.RequestID),
		zap.String("llm", resp.Alias),
		zap.String("model", resp.Model),
		zap.Int("attempts", resp.Attempts),
		zap.Int("prompt_length", len(req.Prompt)),
		zap.Int("response_length", len(resp.Content)),
		zap.Duration("latency", elapsed))

	return &AskResponse{
		LLM:       resp.Alias,
		Model:     resp.Model,
		Response:  resp.Content,
		Attempts:  resp.Attempts,
		LatencyMs: elapsed.Milliseconds(),
	}, nil
}

// buildForward validates the request and decodes the attachment
func (s *InferenceService) buildForward(req *AskRequest) (router.Request, error) {
	if err := utils.ValidateAlias(req.LLM); err != nil {
		return router.Request{}, services.FromValidationError(err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return router.Request{}, services.FromValidationError(err)
	}
	if err := utils.ValidateStringLength(req.Prompt, "prompt", 1, s.opts.MaxPromptLength); err != nil {
		return router.Request{}, services.FromValidationError(err)
	}

	fwd := router.Request{Alias: req.LLM, Prompt: req.Prompt}
	if att := req.Attachment; att != nil {
		data, err := utils.DecodeBase64(att.Data, "attachment", s.opts.MaxAttachmentBytes)
		if err != nil {
			return router.Request{}, services.FromValidationError(err)
		}
		fwd.Attachment = &router.Attachment{
			Name:     att.Name,
			MIMEType: att.MIMEType,
			Data:     data,
		}
	}
	return fwd, nil
}

// record writes metrics and the audit entry. Neither can fail the request.
func (s *InferenceService) record(ctx context.Context, req *AskRequest, resp *router.Response, err error, elapsed time.Duration) {
	attempts := router.AttemptsOf(err)
	if resp != nil {
		attempts = resp.Attempts
	}
	alias, configured := s.canonicalAlias(req.LLM, resp)
	label := alias
	if !configured {
		label = UnknownAliasLabel
	}
	s.metrics.ObserveForward(label, attempts, elapsed, err)

	transport := req.Transport
	if transport == "" {
		transport = models.TransportHTTP
	}
	entry := models.NewAuditEntry(transport, alias).
		WithRequest(req.RequestID, len(req.Prompt), req.Attachment != nil).
		WithLatency(elapsed).
		WithResult(resp, err)

	if recErr := s.recorder.Record(ctx, entry); recErr != nil {
		s.logger.Warn("failed to record audit entry",
			zap.String("request_id", req.RequestID),
			zap.Error(recErr))
	}
}

// canonicalAlias returns the configured spelling of the requested alias.
// Aliases that resolve to nothing are returned as sent with configured false.
func (s *InferenceService) canonicalAlias(requested string, resp *router.Response) (string, bool) {
	if resp != nil && resp.Alias != "" {
		return resp.Alias, true
	}
	if cfg, err := s.router.Resolve(requested); err == nil {
		return cfg.Alias, true
	}
	return requested, false
}

// Providers lists the configured providers in alias order
func (s *InferenceService) Providers() []ProviderInfo {
	configs := s.router.Configs()
	out := make([]ProviderInfo, len(configs))
	for i, cfg := range configs {
		out[i] = ProviderInfo{
			LLM:       cfg.Alias,
			Name:      cfg.DisplayName,
			Model:     cfg.Model,
			CustomURL: cfg.BaseURL != "",
		}
	}
	return out
}

// RecentAudit returns the newest audit entries
func (s *InferenceService) RecentAudit(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if !s.recorder.Enabled() {
		return nil, services.ErrAuditDisabled
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	entries, err := s.recorder.Recent(ctx, limit)
	if err != nil {
		return nil, services.WrapInternal("failed to read audit entries", err)
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	return entries, nil
}

// AuditSummary returns entry counts per alias
func (s *InferenceService) AuditSummary(ctx context.Context) (map[string]int, error) {
	if !s.recorder.Enabled() {
		return nil, services.ErrAuditDisabled
	}
	counts, err := s.recorder.CountByAlias(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to count audit entries", err)
	}
	return counts, nil
}

// ProviderCount is the number of configured aliases
func (s *InferenceService) ProviderCount() int {
	return len(s.router.Aliases())
}
