package handlers

import (
	"context"
	"net/http"

	"github.com/faizmisman/dosm-faq-chatbot/internal/observability"
	"github.com/faizmisman/dosm-faq-chatbot/internal/rag"
	"github.com/faizmisman/dosm-faq-chatbot/middleware"
	"github.com/faizmisman/dosm-faq-chatbot/services/querylog"
	"github.com/faizmisman/dosm-faq-chatbot/utils"
	"go.uber.org/zap"
)

// Reindexer rebuilds the active index.
type Reindexer interface {
	IndexStatus
	Rebuild(ctx context.Context) error
}

// QueryLogStats reports the async query log state.
type QueryLogStats interface {
	GetStats() querylog.Stats
}

// MetricsResponse is the body of GET /metrics.
type MetricsResponse struct {
	observability.Snapshot
	Index    rag.Status      `json:"index"`
	QueryLog *querylog.Stats `json:"query_log,omitempty"`
}

// AdminHandler serves operational endpoints.
type AdminHandler struct {
	index    Reindexer
	counters *observability.Counters
	queryLog QueryLogStats
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler. queryLog may be nil.
func NewAdminHandler(index Reindexer, counters *observability.Counters, queryLog QueryLogStats, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		index:    index,
		counters: counters,
		queryLog: queryLog,
		logger:   logger,
	}
}

// HandleReindex handles POST /admin/reindex
// On failure the previous generation keeps serving.
func (h *AdminHandler) HandleReindex(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))

	if err := h.index.Rebuild(r.Context()); err != nil {
		logger.Warn("reindex failed", zap.Error(err))
		HandlePipelineError(w, err, map[string]interface{}{"index": h.index.Status()}, logger)
		return
	}

	status := h.index.Status()
	logger.Info("reindex completed",
		zap.Uint64("generation", status.Generation),
		zap.Int("chunks", status.Size))
	_ = utils.WriteOK(w, status)
}

// HandleIndexStatus handles GET /admin/index
func (h *AdminHandler) HandleIndexStatus(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.index.Status())
}

// HandleMetrics handles GET /metrics
func (h *AdminHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	response := MetricsResponse{Index: h.index.Status()}
	if h.counters != nil {
		response.Snapshot = h.counters.Snapshot()
	}
	if h.queryLog != nil {
		stats := h.queryLog.GetStats()
		response.QueryLog = &stats
	}
	_ = utils.WriteJSON(w, http.StatusOK, response)
}
