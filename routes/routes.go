package routes

import (
	"net/http"

	"github.com/faizmisman/dosm-faq-chatbot/app"
	"github.com/faizmisman/dosm-faq-chatbot/handlers"
	"github.com/faizmisman/dosm-faq-chatbot/middleware"
	"github.com/faizmisman/dosm-faq-chatbot/utils"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(deps.Logger, deps.Counters))
	r.Use(chimw.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.APIKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	var queryLog handlers.QueryLogger
	var queryLogStats handlers.QueryLogStats
	if deps.QueryLogService != nil {
		queryLog = deps.QueryLogService
		queryLogStats = deps.QueryLogService
	}

	health := handlers.NewHealthHandler(deps.SQLDB(), deps.Pipeline, cfg.ModelVersion, deps.Logger)
	predict := handlers.NewPredictHandler(deps.Pipeline, deps.Counters, queryLog, cfg.ModelVersion, deps.Logger)
	admin := handlers.NewAdminHandler(deps.Pipeline, deps.Counters, queryLogStats, deps.Logger)

	// Health check endpoints
	r.Get("/health", health.HandleHealth)
	r.Get("/health/ready", health.HandleReadiness)
	r.Get("/metrics", admin.HandleMetrics)

	// Protected when API_KEY is set
	r.Group(func(r chi.Router) {
		r.Use(deps.APIKey.RequireAPIKey)
		r.Post("/predict", predict.HandlePredict)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reindex", admin.HandleReindex)
			r.Get("/index", admin.HandleIndexStatus)
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
