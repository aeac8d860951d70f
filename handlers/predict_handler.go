package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/internal/observability"
	"github.com/faizmisman/dosm-faq-chatbot/internal/rag"
	"github.com/faizmisman/dosm-faq-chatbot/middleware"
	"github.com/faizmisman/dosm-faq-chatbot/models"
	"github.com/faizmisman/dosm-faq-chatbot/services/querylog"
	"github.com/faizmisman/dosm-faq-chatbot/utils"
	"go.uber.org/zap"
)

// MaxQueryLength bounds the query in characters.
const MaxQueryLength = 4000

// Answerer answers one question. Implementations never fail.
type Answerer interface {
	AnswerQuery(ctx context.Context, query string) rag.Result
}

// QueryLogger queues an entry for persistence without blocking.
type QueryLogger interface {
	Log(entry *models.QueryLog) error
}

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Query    string  `json:"query" validate:"notblank,max=4000"`
	UserID   *string `json:"user_id,omitempty" validate:"omitempty,max=255"`
	ToolName *string `json:"tool_name,omitempty" validate:"omitempty,max=255"`
}

// PredictResponse is the body returned by POST /predict.
type PredictResponse struct {
	Prediction   rag.Result `json:"prediction"`
	LatencyMs    int64      `json:"latency_ms"`
	ModelVersion string     `json:"model_version"`
}

// PredictHandler serves dataset questions.
type PredictHandler struct {
	answerer     Answerer
	metrics      observability.Metrics
	queryLog     QueryLogger
	modelVersion string
	logger       *zap.Logger
}

// NewPredictHandler creates a PredictHandler. metrics and queryLog may be nil.
func NewPredictHandler(answerer Answerer, metrics observability.Metrics, queryLog QueryLogger, modelVersion string, logger *zap.Logger) *PredictHandler {
	return &PredictHandler{
		answerer:     answerer,
		metrics:      metrics,
		queryLog:     queryLog,
		modelVersion: modelVersion,
		logger:       logger,
	}
}

// HandlePredict handles POST /predict
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())
	logger := observability.WithRequestID(h.logger, requestID)

	var req PredictRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		var validationErr *utils.ValidationError
		if errors.As(err, &validationErr) {
			_ = utils.WriteBadRequest(w, validationErr.Message, validationErr.Details())
			return
		}
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	start := time.Now()
	result := h.answerer.AnswerQuery(r.Context(), req.Query)
	latency := time.Since(start)

	if h.metrics != nil {
		h.metrics.RecordPrediction(string(result.FailureMode), latency)
	}

	logger.Info("prediction served",
		zap.String("failure_mode", string(result.FailureMode)),
		zap.Float64("confidence", result.Confidence),
		zap.Int("citations", len(result.Citations)),
		zap.Int64("latency_ms", latency.Milliseconds()))

	h.logQuery(logger, requestID, req, result, latency)

	resp := PredictResponse{
		Prediction:   result,
		LatencyMs:    latency.Milliseconds(),
		ModelVersion: h.modelVersion,
	}
	if err := utils.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error("failed to write prediction response", zap.Error(err))
	}
}

func (h *PredictHandler) logQuery(logger *zap.Logger, requestID string, req PredictRequest, result rag.Result, latency time.Duration) {
	if h.queryLog == nil {
		return
	}

	entry := models.NewQueryLog(requestID, req.Query, result.Answer, h.modelVersion).
		WithOutcome(string(result.FailureMode), result.Confidence, int(latency.Milliseconds()))
	if req.UserID != nil {
		entry.WithUser(*req.UserID)
	}

	err := h.queryLog.Log(entry)
	switch {
	case err == nil, errors.Is(err, querylog.ErrBufferFull):
		// full buffers are counted by the service
	default:
		logger.Debug("query log unavailable", zap.Error(err))
	}
}
