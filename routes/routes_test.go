package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/app"
	"github.com/faizmisman/dosm-faq-chatbot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dosm.csv")
	require.NoError(t, os.WriteFile(path, []byte("year,indicator,value\n2023,population,33.4\n2024,population,33.9\n"), 0o644))

	cfg := &config.Config{
		Environment:  "test",
		ModelVersion: "dosm-rag-test",
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
			AllowedOrigins: []string{"https://dosm.example"},
		},
		RAG: config.RAGConfig{
			DatasetPath:         path,
			DatasetSource:       "dosm_dataset",
			ChunkSize:           25,
			ConfidenceThreshold: 0.25,
			TopK:                3,
			SnippetMaxLength:    200,
		},
		VectorStore: config.VectorStoreConfig{Backend: config.BackendMemory},
		Embedding:   config.EmbeddingConfig{Provider: "hash"},
		Generator:   config.GeneratorConfig{Provider: "openai", Timeout: time.Second},
		Auth:        config.AuthConfig{APIKey: apiKey},
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	server := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(func() {
		server.Close()
		_ = deps.Close(context.Background())
	})
	return server
}

func do(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes_OpenWhenNoAPIKey(t *testing.T) {
	server := newTestServer(t, "")

	t.Run("health", func(t *testing.T) {
		resp := do(t, http.MethodGet, server.URL+"/health", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "dosm-rag-test", body["version"])
		checks := body["checks"].(map[string]interface{})
		assert.Equal(t, "unconfigured", checks["db"])
	})

	t.Run("predict", func(t *testing.T) {
		resp := do(t, http.MethodPost, server.URL+"/predict", `{"query":"population 2024"}`,
			map[string]string{"Content-Type": "application/json", "X-Request-ID": "trace-1"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "trace-1", resp.Header.Get("X-Request-ID"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "dosm-rag-test", body["model_version"])
		prediction := body["prediction"].(map[string]interface{})
		assert.Contains(t, prediction, "failure_mode")
		assert.Contains(t, prediction, "citations")
	})

	t.Run("vector store ready after first query", func(t *testing.T) {
		resp := do(t, http.MethodGet, server.URL+"/health/ready", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("metrics count predictions and requests", func(t *testing.T) {
		resp := do(t, http.MethodGet, server.URL+"/metrics", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.GreaterOrEqual(t, body["predictions"], float64(1))
		requests := body["requests"].(map[string]interface{})
		assert.Contains(t, requests, "POST /predict 2xx")
	})

	t.Run("invalid body", func(t *testing.T) {
		resp := do(t, http.MethodPost, server.URL+"/predict", `{"query":""}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp := do(t, http.MethodGet, server.URL+"/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})

	t.Run("wrong method", func(t *testing.T) {
		resp := do(t, http.MethodGet, server.URL+"/predict", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("cors preflight", func(t *testing.T) {
		resp := do(t, http.MethodOptions, server.URL+"/predict", "", map[string]string{
			"Origin":                        "https://dosm.example",
			"Access-Control-Request-Method": "POST",
		})
		assert.Equal(t, "https://dosm.example", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestRoutes_APIKeyProtection(t *testing.T) {
	server := newTestServer(t, "s3cret")

	tests := []struct {
		name         string
		method       string
		path         string
		body         string
		key          string
		expectedCode int
	}{
		{name: "health stays open", method: http.MethodGet, path: "/health", expectedCode: http.StatusOK},
		{name: "predict without key", method: http.MethodPost, path: "/predict", body: `{"query":"population"}`, expectedCode: http.StatusUnauthorized},
		{name: "predict with wrong key", method: http.MethodPost, path: "/predict", body: `{"query":"population"}`, key: "nope", expectedCode: http.StatusUnauthorized},
		{name: "predict with key", method: http.MethodPost, path: "/predict", body: `{"query":"population"}`, key: "s3cret", expectedCode: http.StatusOK},
		{name: "reindex without key", method: http.MethodPost, path: "/admin/reindex", expectedCode: http.StatusUnauthorized},
		{name: "reindex with key", method: http.MethodPost, path: "/admin/reindex", key: "s3cret", expectedCode: http.StatusOK},
		{name: "index status with key", method: http.MethodGet, path: "/admin/index", key: "s3cret", expectedCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.key != "" {
				headers["X-API-Key"] = tt.key
			}
			resp := do(t, tt.method, server.URL+tt.path, tt.body, headers)
			assert.Equal(t, tt.expectedCode, resp.StatusCode)
		})
	}
}
