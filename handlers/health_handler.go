package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/internal/rag"
	"github.com/faizmisman/dosm-faq-chatbot/utils"
	"go.uber.org/zap"
)

// Check values reported by /health.
const (
	CheckOK           = "ok"
	CheckUnconfigured = "unconfigured"
	CheckError        = "error"

	IndexReady       = "ready"
	IndexPending     = "pending"
	IndexUnavailable = "unavailable"
)

// IndexStatus exposes the active index generation.
type IndexStatus interface {
	Status() rag.Status
}

// HealthChecks lists per-dependency results.
type HealthChecks struct {
	DB          string `json:"db"`
	VectorStore string `json:"vector_store"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Checks  HealthChecks `json:"checks"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db      *sql.DB
	index   IndexStatus
	version string
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil when no
// database is configured.
func NewHealthHandler(db *sql.DB, index IndexStatus, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		index:   index,
		version: version,
		logger:  logger,
	}
}

// HandleHealth handles GET /health
// Always 200 while the process serves; status is "degraded" when the
// database is configured but failing.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := h.check(ctx)
	if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write health response", zap.Error(err))
	}
}

// HandleReadiness handles GET /health/ready
// Ready once an index generation is active and the database, if any, answers.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := h.check(ctx)
	httpStatus := http.StatusOK
	if response.Checks.VectorStore != IndexReady || response.Checks.DB == CheckError {
		httpStatus = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) check(ctx context.Context) HealthResponse {
	response := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Checks: HealthChecks{
			DB:          h.databaseCheck(ctx),
			VectorStore: h.indexCheck(),
		},
	}
	if response.Checks.DB == CheckError {
		response.Status = "degraded"
	}
	return response
}

func (h *HealthHandler) databaseCheck(ctx context.Context) string {
	if h.db == nil {
		return CheckUnconfigured
	}

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		return CheckError
	}

	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		h.logger.Warn("database query check failed", zap.Error(err))
		return CheckError
	}

	return CheckOK
}

func (h *HealthHandler) indexCheck() string {
	if h.index == nil {
		return IndexUnavailable
	}
	status := h.index.Status()
	switch {
	case status.Ready:
		return IndexReady
	case !status.Attempted:
		return IndexPending
	default:
		return IndexUnavailable
	}
}
