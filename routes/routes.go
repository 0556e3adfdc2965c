package routes

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/askllm/app"
	"github.com/upb/askllm/handlers"
	"github.com/upb/askllm/middleware"
	"github.com/upb/askllm/utils"
)

// bodyOverhead covers the JSON envelope around the prompt and attachment
const bodyOverhead = 64 << 10

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	if cfg.Server.WriteTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.Server.WriteTimeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	healthHandler := handlers.NewHealthHandler(db, deps.Inference, deps.Logger)
	inferenceHandler := handlers.NewInferenceHandler(deps.Inference, MaxBodyBytes(cfg.Limits.MaxPromptLength, cfg.Limits.MaxAttachmentBytes), deps.Logger)
	auditHandler := handlers.NewAuditHandler(deps.Inference, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", inferenceHandler.HandleAsk)
		r.Get("/providers", inferenceHandler.HandleListProviders)

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", auditHandler.HandleRecent)
			r.Get("/summary", auditHandler.HandleSummary)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

// MaxBodyBytes bounds an ask body: the prompt, the base64 attachment and the
// JSON around them.
func MaxBodyBytes(maxPrompt, maxAttachment int) int64 {
	encoded := (int64(maxAttachment) + 2) / 3 * 4
	return int64(maxPrompt) + encoded + bodyOverhead
}
