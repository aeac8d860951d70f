package handlers

import (
	"net/http"

	"github.com/faizmisman/dosm-faq-chatbot/internal/rag"
	"github.com/faizmisman/dosm-faq-chatbot/utils"
	"go.uber.org/zap"
)

// HandlePipelineError maps pipeline errors to HTTP responses
func HandlePipelineError(w http.ResponseWriter, err error, details map[string]interface{}, logger *zap.Logger) {
	if err == nil {
		return
	}

	if details == nil {
		details = make(map[string]interface{})
	}
	kind := rag.KindOf(err)
	if kind != "" {
		details["kind"] = string(kind)
	}

	var writeErr error
	switch kind {
	case rag.KindInvalidInput:
		writeErr = utils.WriteBadRequest(w, err.Error(), details)
	case rag.KindIndexUnavailable, rag.KindBackendTransient:
		writeErr = utils.WriteError(w, http.StatusServiceUnavailable, err.Error(), details)
	default:
		logger.Error("unexpected pipeline error", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusInternalServerError, "Internal server error", details)
	}
	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
