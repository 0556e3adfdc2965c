package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/askllm/config"
	"github.com/upb/askllm/internal/observability"
	"github.com/upb/askllm/internal/router"
	"github.com/upb/askllm/repositories/sqlstore"
	"github.com/upb/askllm/services/audit"
	"github.com/upb/askllm/services/inference"
	"github.com/upb/askllm/services/providers"
	"github.com/upb/askllm/services/providers/anthropic"
	"github.com/upb/askllm/services/providers/gemini"
	"github.com/upb/askllm/services/providers/openai"
)

// DefaultModelPrefixes maps bare model names to a provider. Identifiers in
// "provider/model" form need no entry.
var DefaultModelPrefixes = map[string]string{
	"gpt-":    "openai",
	"o1":      "openai",
	"o3":      "openai",
	"o4":      "openai",
	"chatgpt": "openai",
	"claude-": "anthropic",
	"gemini-": "gemini",
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	DB      *sqlstore.DB // nil when the audit ledger is disabled
	Metrics *observability.Metrics

	// Routing
	Providers *providers.Registry
	Router    *router.Router

	// Services
	Audit     audit.Recorder
	Inference *inference.InferenceService
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	for _, warning := range cfg.Warnings {
		logger.Warn("configuration warning", zap.String("detail", warning))
	}

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initRouter(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	if err := deps.initAudit(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize audit ledger: %w", err)
	}

	deps.Inference = inference.NewInferenceService(
		deps.Router,
		deps.Audit,
		deps.Metrics,
		inference.Options{
			MaxPromptLength:    cfg.Limits.MaxPromptLength,
			MaxAttachmentBytes: cfg.Limits.MaxAttachmentBytes,
			RequestTimeout:     cfg.Server.RequestTimeout,
		},
		logger,
	)

	logger.Info("all dependencies initialized successfully",
		zap.Strings("providers", deps.Router.Aliases()),
		zap.Bool("audit", deps.Audit.Enabled()),
		zap.Bool("metrics", deps.Metrics != nil))
	return deps, nil
}

// initProviders builds the transport registry
func (d *Dependencies) initProviders(cfg *config.Config) error {
	builder := providers.NewRegistryBuilder(d.Logger).
		WithProviderBuilder("openai", openai.Build).
		WithProviderBuilder("anthropic", anthropic.Build).
		WithProviderBuilder("gemini", gemini.Build)
	for prefix, name := range DefaultModelPrefixes {
		builder.WithModelPrefix(prefix, name)
	}

	providerCfg := providers.DefaultProviderConfig()
	providerCfg.Timeout = cfg.Server.RequestTimeout

	registry, err := builder.Build(providerCfg)
	if err != nil {
		return err
	}

	d.Providers = registry
	d.Logger.Info("provider transports registered", zap.Strings("transports", registry.ListProviders()))
	return nil
}

// initRouter builds the immutable alias table
func (d *Dependencies) initRouter(cfg *config.Config) error {
	configs := cfg.ProviderConfigs()
	table, err := router.NewTable(configs...)
	if err != nil {
		return err
	}

	for _, pc := range configs {
		if err := d.Providers.ValidateModel(pc.Model); err != nil {
			d.Logger.Warn("configured model has no transport, calls will fail",
				zap.String("llm", pc.Alias),
				zap.String("model", pc.Model))
		}
	}

	if table.Len() == 0 {
		d.Logger.Warn("no LLM providers configured", zap.String("hint", config.ConfigEnvVar))
	}

	d.Router = router.New(table, d.Providers)
	return nil
}

// initAudit opens the audit database when a DSN is configured
func (d *Dependencies) initAudit(ctx context.Context, cfg *config.Config) error {
	if cfg.Audit.DSN == "" {
		d.Audit = audit.NoopRecorder{}
		d.Logger.Info("audit ledger disabled")
		return nil
	}

	db, err := sqlstore.NewDB(ctx, cfg.Audit, d.Logger)
	if err != nil {
		return err
	}

	service := audit.NewAuditService(sqlstore.NewAuditRepository(db, d.Logger), d.Logger, audit.DefaultConfig())
	if err := service.Start(); err != nil {
		_ = db.Close()
		return err
	}

	d.DB = db
	d.Audit = service
	d.Metrics.RegisterAuditQueue(func() int { return service.GetStats().PendingEvents })
	d.Logger.Info("audit ledger enabled",
		zap.String("dialect", string(db.Dialect())),
		zap.String("connection", sqlstore.LogString(cfg.Audit.DSN)))
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Flush pending audit entries before the database goes away
	if d.Audit != nil {
		if err := d.Audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush audit ledger: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
