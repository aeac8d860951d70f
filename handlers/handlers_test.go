package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/faizmisman/dosm-faq-chatbot/internal/observability"
	"github.com/faizmisman/dosm-faq-chatbot/internal/rag"
	"github.com/faizmisman/dosm-faq-chatbot/middleware"
	"github.com/faizmisman/dosm-faq-chatbot/models"
	"github.com/faizmisman/dosm-faq-chatbot/services/querylog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAnswerer struct {
	result rag.Result
	mu     sync.Mutex
	seen   []string
}

func (f *fakeAnswerer) AnswerQuery(ctx context.Context, query string) rag.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, query)
	return f.result
}

type MockQueryLogger struct {
	mock.Mock
}

func (m *MockQueryLogger) Log(entry *models.QueryLog) error {
	args := m.Called(entry)
	return args.Error(0)
}

type fakeIndex struct {
	status     rag.Status
	rebuildErr error
	rebuilds   int
}

func (f *fakeIndex) Status() rag.Status { return f.status }

func (f *fakeIndex) Rebuild(ctx context.Context) error {
	f.rebuilds++
	if f.rebuildErr != nil {
		return f.rebuildErr
	}
	f.status.Ready = true
	f.status.Attempted = true
	f.status.Generation++
	return nil
}

type fakeQueryLogStats struct{ stats querylog.Stats }

func (f fakeQueryLogStats) GetStats() querylog.Stats { return f.stats }

func answered() rag.Result {
	row := 0
	return rag.Result{
		Answer:      "Population grew in 2024.",
		Citations:   []rag.Citation{{Source: "dosm_dataset", Snippet: "year=2024", RowReference: &row, Confidence: 0.8}},
		Confidence:  0.8,
		FailureMode: rag.FailureNone,
	}
}

func predictRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	return req.WithContext(middleware.WithRequestID(req.Context(), "rid-42"))
}

func TestHandlePredict(t *testing.T) {
	logger := zap.NewNop()

	t.Run("answers and reports metadata", func(t *testing.T) {
		answerer := &fakeAnswerer{result: answered()}
		counters := observability.NewCounters()
		queryLog := new(MockQueryLogger)
		queryLog.On("Log", mock.MatchedBy(func(e *models.QueryLog) bool {
			return e.RequestID == "rid-42" &&
				e.Query == "population 2024" &&
				e.UserID != nil && *e.UserID == "u-1" &&
				e.FailureMode == nil &&
				!e.IsRefusal &&
				e.ModelVersion == "dosm-rag-test"
		})).Return(nil).Once()

		h := NewPredictHandler(answerer, counters, queryLog, "dosm-rag-test", logger)
		w := httptest.NewRecorder()
		h.HandlePredict(w, predictRequest(`{"query":"population 2024","user_id":"u-1","tool_name":"faq"}`))

		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Prediction struct {
				Answer      string                   `json:"answer"`
				Citations   []map[string]interface{} `json:"citations"`
				Confidence  float64                  `json:"confidence"`
				FailureMode string                   `json:"failure_mode"`
			} `json:"prediction"`
			LatencyMs    *int64 `json:"latency_ms"`
			ModelVersion string `json:"model_version"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Population grew in 2024.", resp.Prediction.Answer)
		assert.Equal(t, "none", resp.Prediction.FailureMode)
		require.Len(t, resp.Prediction.Citations, 1)
		assert.Equal(t, float64(0), resp.Prediction.Citations[0]["page_or_row"])
		assert.NotNil(t, resp.LatencyMs)
		assert.Equal(t, "dosm-rag-test", resp.ModelVersion)

		assert.Equal(t, []string{"population 2024"}, answerer.seen)
		assert.Equal(t, int64(1), counters.Snapshot().Predictions)
		queryLog.AssertExpectations(t)
	})

	t.Run("refusal is logged as refusal", func(t *testing.T) {
		answerer := &fakeAnswerer{result: rag.Result{
			Answer:      rag.NotIngestedAnswer,
			Citations:   []rag.Citation{},
			FailureMode: rag.FailureRefuse,
		}}
		queryLog := new(MockQueryLogger)
		queryLog.On("Log", mock.MatchedBy(func(e *models.QueryLog) bool {
			return e.IsRefusal && e.FailureMode != nil && *e.FailureMode == "refuse" && e.UserID == nil
		})).Return(querylog.ErrBufferFull).Once()

		counters := observability.NewCounters()
		h := NewPredictHandler(answerer, counters, queryLog, "v", logger)
		w := httptest.NewRecorder()
		h.HandlePredict(w, predictRequest(`{"query":"anything"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"citations":[]`)
		assert.Equal(t, int64(1), counters.Snapshot().Refusals)
		queryLog.AssertExpectations(t)
	})

	t.Run("query log failure does not fail request", func(t *testing.T) {
		queryLog := new(MockQueryLogger)
		queryLog.On("Log", mock.Anything).Return(errors.New("not started"))

		h := NewPredictHandler(&fakeAnswerer{result: answered()}, nil, queryLog, "v", logger)
		w := httptest.NewRecorder()
		h.HandlePredict(w, predictRequest(`{"query":"population"}`))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	invalid := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing query", body: `{}`, field: "query"},
		{name: "blank query", body: `{"query":"   "}`, field: "query"},
		{name: "query too long", body: `{"query":"` + strings.Repeat("q", MaxQueryLength+1) + `"}`, field: "query"},
		{name: "malformed json", body: `{"query":`},
		{name: "empty body", body: ``},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			answerer := &fakeAnswerer{result: answered()}
			h := NewPredictHandler(answerer, nil, nil, "v", logger)
			w := httptest.NewRecorder()
			h.HandlePredict(w, predictRequest(tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, answerer.seen)

			var resp map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, "bad_request", resp["error"])
			if tt.field != "" {
				details := resp["details"].(map[string]interface{})
				assert.Contains(t, details, tt.field)
			}
		})
	}

	t.Run("query at the length limit is accepted", func(t *testing.T) {
		h := NewPredictHandler(&fakeAnswerer{result: answered()}, nil, nil, "v", logger)
		w := httptest.NewRecorder()
		h.HandlePredict(w, predictRequest(`{"query":"`+strings.Repeat("é", MaxQueryLength)+`"}`))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestHandleHealth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("no database and pending index", func(t *testing.T) {
		handler := NewHealthHandler(nil, &fakeIndex{}, "dosm-rag-local", logger)

		w := httptest.NewRecorder()
		handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeHealth(t, w)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "dosm-rag-local", resp.Version)
		assert.Equal(t, CheckUnconfigured, resp.Checks.DB)
		assert.Equal(t, IndexPending, resp.Checks.VectorStore)
	})

	t.Run("healthy when database is available", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		handler := NewHealthHandler(db, &fakeIndex{status: rag.Status{Ready: true, Attempted: true}}, "v", logger)
		w := httptest.NewRecorder()
		handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		resp := decodeHealth(t, w)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, CheckOK, resp.Checks.DB)
		assert.Equal(t, IndexReady, resp.Checks.VectorStore)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("degraded when database ping fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing().WillReturnError(sql.ErrConnDone)

		handler := NewHealthHandler(db, &fakeIndex{status: rag.Status{Attempted: true}}, "v", logger)
		w := httptest.NewRecorder()
		handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeHealth(t, w)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, CheckError, resp.Checks.DB)
		assert.Equal(t, IndexUnavailable, resp.Checks.VectorStore)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("degraded when database query fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnError(sql.ErrConnDone)

		handler := NewHealthHandler(db, &fakeIndex{}, "v", logger)
		w := httptest.NewRecorder()
		handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, "degraded", decodeHealth(t, w).Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name         string
		status       rag.Status
		expectedCode int
	}{
		{name: "ready index", status: rag.Status{Ready: true, Attempted: true}, expectedCode: http.StatusOK},
		{name: "index not built yet", status: rag.Status{}, expectedCode: http.StatusServiceUnavailable},
		{name: "index build failed", status: rag.Status{Attempted: true, LastError: "boom"}, expectedCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(nil, &fakeIndex{status: tt.status}, "v", logger)
			w := httptest.NewRecorder()
			handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestHandleReindex(t *testing.T) {
	logger := zap.NewNop()

	t.Run("rebuild succeeds", func(t *testing.T) {
		index := &fakeIndex{}
		h := NewAdminHandler(index, nil, nil, logger)

		w := httptest.NewRecorder()
		h.HandleReindex(w, httptest.NewRequest(http.MethodPost, "/admin/reindex", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, index.rebuilds)

		var resp map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, true, data["ready"])
		assert.Equal(t, float64(1), data["generation"])
	})

	failures := []struct {
		name         string
		err          error
		expectedCode int
		kind         string
	}{
		{
			name:         "malformed dataset",
			err:          rag.NewError(rag.KindInvalidInput, "dataset rejected", errors.New("ragged row")),
			expectedCode: http.StatusBadRequest,
			kind:         "invalid_input",
		},
		{
			name:         "no source opens",
			err:          rag.NewError(rag.KindIndexUnavailable, "no index", nil),
			expectedCode: http.StatusServiceUnavailable,
			kind:         "index_unavailable",
		},
		{
			name:         "embedding backend down",
			err:          rag.NewError(rag.KindBackendTransient, "build failed", errors.New("connection refused")),
			expectedCode: http.StatusServiceUnavailable,
			kind:         "backend_transient",
		},
		{
			name:         "unclassified error",
			err:          errors.New("surprise"),
			expectedCode: http.StatusInternalServerError,
		},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			index := &fakeIndex{rebuildErr: tt.err, status: rag.Status{Ready: true, Attempted: true, Generation: 3}}
			h := NewAdminHandler(index, nil, nil, logger)

			w := httptest.NewRecorder()
			h.HandleReindex(w, httptest.NewRequest(http.MethodPost, "/admin/reindex", nil))

			assert.Equal(t, tt.expectedCode, w.Code)

			var resp map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			details := resp["details"].(map[string]interface{})
			if tt.kind != "" {
				assert.Equal(t, tt.kind, details["kind"])
			}
			current := details["index"].(map[string]interface{})
			assert.Equal(t, float64(3), current["generation"], "previous generation keeps serving")
		})
	}
}

func TestHandleMetrics(t *testing.T) {
	counters := observability.NewCounters()
	counters.RecordPrediction("none", 120*time.Millisecond)
	counters.RecordPrediction("clarify", 30*time.Millisecond)

	stats := fakeQueryLogStats{stats: querylog.Stats{Written: 2, Dropped: 1, Started: true}}
	h := NewAdminHandler(&fakeIndex{status: rag.Status{Ready: true, Attempted: true, Kind: "memory", Size: 4}}, counters, stats, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleMetrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp MetricsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, int64(2), resp.Predictions)
	assert.Equal(t, int64(1), resp.Decisions["clarify"])
	assert.Equal(t, "memory", resp.Index.Kind)
	require.NotNil(t, resp.QueryLog)
	assert.Equal(t, int64(1), resp.QueryLog.Dropped)
}

func TestHandleIndexStatus(t *testing.T) {
	h := NewAdminHandler(&fakeIndex{status: rag.Status{Attempted: true, LastError: "index_unavailable: no index"}}, nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleIndexStatus(w, httptest.NewRequest(http.MethodGet, "/admin/index", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "index_unavailable: no index")
}
