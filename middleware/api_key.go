package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/faizmisman/dosm-faq-chatbot/utils"
	"go.uber.org/zap"
)

// APIKeyHeader is the header checked by APIKeyMiddleware.
const APIKeyHeader = "X-API-Key"

// APIKeyMiddleware guards endpoints with a single static key.
type APIKeyMiddleware struct {
	apiKey string
	logger *zap.Logger
}

// NewAPIKeyMiddleware creates the middleware. An empty key leaves every
// endpoint open.
func NewAPIKeyMiddleware(apiKey string, logger *zap.Logger) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		apiKey: apiKey,
		logger: logger,
	}
}

// Enabled reports whether a key is configured.
func (m *APIKeyMiddleware) Enabled() bool {
	return m.apiKey != ""
}

// RequireAPIKey rejects requests whose X-API-Key does not match.
func (m *APIKeyMiddleware) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(m.apiKey)) != 1 {
			m.logger.Warn("rejected request with invalid api key",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Bool("key_present", provided != ""))
			_ = utils.WriteUnauthorized(w, "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
