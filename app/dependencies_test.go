package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/config"
	"github.com/faizmisman/dosm-faq-chatbot/internal/rag"
	"github.com/faizmisman/dosm-faq-chatbot/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testCSV = "year,indicator,value\n2023,population,33.4\n2024,population,33.9\n2024,unemployment,3.3\n"

// testConfig returns a database-free configuration over a temporary dataset.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dosm.csv")
	require.NoError(t, os.WriteFile(path, []byte(testCSV), 0o644))

	return &config.Config{
		Environment:  "test",
		ModelVersion: "dosm-rag-test",
		Server: config.ServerConfig{
			Port:           8000,
			RequestTimeout: 5 * time.Second,
		},
		RAG: config.RAGConfig{
			DatasetPath:         path,
			DatasetSource:       "dosm_dataset",
			ChunkSize:           2,
			ConfidenceThreshold: 0.25,
			TopK:                3,
			SnippetMaxLength:    200,
		},
		VectorStore: config.VectorStoreConfig{
			Backend:     config.BackendMemory,
			SnapshotDir: filepath.Join(dir, "vectorstore"),
		},
		Embedding: config.EmbeddingConfig{Provider: "hash"},
		Generator: config.GeneratorConfig{Provider: "openai", Timeout: time.Second},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "console",
		},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("memory backend without database", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.QueryLogService)
		assert.Nil(t, deps.Generator)
		assert.Nil(t, deps.Watcher)
		assert.NotNil(t, deps.Counters)
		assert.False(t, deps.APIKey.Enabled())
		assert.Equal(t, []string{"dataset"}, deps.IndexFactory.Sources())

		require.NoError(t, deps.Start(ctx))
		status := deps.Pipeline.Status()
		assert.True(t, status.Ready)
		assert.Equal(t, "memory", status.Kind)
		assert.Equal(t, 2, status.Size)

		res := deps.Pipeline.AnswerQuery(ctx, "population 2024")
		assert.NotEmpty(t, res.Answer)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("snapshot backend persists then reopens", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.VectorStore.Backend = config.BackendSnapshot

		first, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Equal(t, []string{"snapshot", "dataset"}, first.IndexFactory.Sources())
		require.NoError(t, first.Start(ctx))
		assert.Equal(t, "snapshot", first.Pipeline.Status().Kind)
		require.NoError(t, first.Close(ctx))

		_, err = os.Stat(cfg.VectorStore.SnapshotPath())
		require.NoError(t, err)

		second, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NoError(t, second.Start(ctx))
		assert.Equal(t, "snapshot", second.Pipeline.Status().Kind)
		require.NoError(t, second.Close(ctx))
	})

	t.Run("missing dataset refuses instead of failing", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.RAG.DatasetPath = filepath.Join(t.TempDir(), "absent.csv")

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NoError(t, deps.Start(ctx))

		res := deps.Pipeline.AnswerQuery(ctx, "population")
		assert.Equal(t, rag.FailureRefuse, res.FailureMode)
		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("generator without credentials falls back to template", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Generator.Enabled = true

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Nil(t, deps.Generator)
		assert.NoError(t, deps.Close(context.Background()))
	})

	t.Run("stub answer skips generator construction", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Generator.Enabled = true
		cfg.Generator.OpenAIAPIKey = "sk-test"
		cfg.Generator.StubAnswer = "stubbed"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Nil(t, deps.Generator)
		assert.NoError(t, deps.Close(context.Background()))
	})

	t.Run("generator configured with key", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Generator.Enabled = true
		cfg.Generator.OpenAIAPIKey = "sk-test"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps.Generator)
		assert.Contains(t, deps.Generator.Name(), "openai")
		assert.NoError(t, deps.Close(context.Background()))
	})

	t.Run("api key and watcher", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Auth.APIKey = "s3cret"
		cfg.VectorStore.WatchDataset = true

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.True(t, deps.APIKey.Enabled())
		require.NotNil(t, deps.Watcher)

		require.NoError(t, deps.Start(ctx))
		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("unknown embedding provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Embedding.Provider = "word2vec"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize embedder")
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database = config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "dosm",
			Database: "dosm",
			SSLMode:  "disable",
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestDependencies_RebuildRereadsDataset(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.VectorStore.Backend = config.BackendSnapshot

	seed, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, seed.Start(ctx))
	require.NoError(t, seed.Close(ctx))

	deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)
	assert.Equal(t, []string{"dataset"}, deps.RebuildFactory.Sources())

	require.NoError(t, deps.Start(ctx))
	st := deps.Pipeline.Status()
	assert.Equal(t, "snapshot", st.Kind)
	assert.Equal(t, 2, st.Size)
	assert.Equal(t, uint64(1), st.Generation)

	updated := testCSV + "2030,rubbertrees,999\n2031,rubbertrees,1001\n"
	require.NoError(t, os.WriteFile(cfg.RAG.DatasetPath, []byte(updated), 0o644))

	require.NoError(t, deps.Pipeline.Rebuild(ctx))
	st = deps.Pipeline.Status()
	assert.Equal(t, 3, st.Size)
	assert.Equal(t, "snapshot", st.Kind)
	assert.Equal(t, uint64(2), st.Generation)

	persisted, err := vectorindex.LoadSnapshot(cfg.VectorStore.SnapshotPath(), deps.Embedder, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 3, persisted.Len())

	var found bool
	for _, c := range persisted.Chunks() {
		if strings.Contains(c.Content, "rubbertrees") {
			found = true
		}
	}
	assert.True(t, found, "persisted snapshot should hold rows added to the dataset")
}

func TestDependenciesClose_Twice(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NoError(t, deps.Close(ctx))
	assert.NotPanics(t, func() { _ = deps.Close(ctx) })
}

func TestDependencies_IndexBuilder(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.VectorStore.Backend = config.BackendSnapshot

	deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	_, ok := deps.IndexBuilder().(*vectorindex.SnapshotBuilder)
	assert.True(t, ok)
}
