package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Vector store backends.
const (
	BackendMemory   = "memory"
	BackendSnapshot = "snapshot"
	BackendPGVector = "pgvector"
	BackendChroma   = "chroma"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	RAG           RAGConfig
	VectorStore   VectorStoreConfig
	Embedding     EmbeddingConfig
	Generator     GeneratorConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	ModelVersion  string `validate:"required"`
	Environment   string `validate:"required"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int `validate:"min=1,max=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
// A config with neither ConnectionString nor Host is treated as "no database".
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int `validate:"min=0"`
	MaxIdleConns     int `validate:"min=0"`
	ConnMaxLifetime  time.Duration
}

// RAGConfig holds retrieval and decision settings.
type RAGConfig struct {
	DatasetPath         string
	DatasetSource       string  `validate:"required"`
	ChunkSize           int     `validate:"min=1"`
	ConfidenceThreshold float64 `validate:"gte=0,lte=1"`
	TopK                int     `validate:"min=1"`
	SnippetMaxLength    int     `validate:"min=1"`
}

// VectorStoreConfig selects where chunk embeddings live.
type VectorStoreConfig struct {
	Backend          string `validate:"oneof=memory snapshot pgvector chroma"`
	SnapshotDir      string
	ChromaURL        string
	ChromaCollection string
	WatchDataset     bool
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `validate:"oneof=hash openai ollama"`
	Model     string
	OllamaURL string
	Dimension int `validate:"min=0"`
}

// GeneratorConfig configures the optional answer generator.
type GeneratorConfig struct {
	Enabled       bool
	Provider      string `validate:"oneof=openai gemini"`
	Model         string
	StubAnswer    string
	Timeout       time.Duration `validate:"gt=0"`
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
}

// AuthConfig holds the optional static API key.
type AuthConfig struct {
	APIKey string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text console"` // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := Load()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads the configuration from the environment without validating it.
func Load() *Config {
	return &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		ModelVersion: getEnv("MODEL_VERSION", "dosm-rag-local"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: loadDatabaseConfig(),
		RAG: RAGConfig{
			DatasetPath:         getEnv("DATASET_PATH", "data/dosm_dataset.csv"),
			DatasetSource:       getEnv("DATASET_SOURCE_URL", "dosm_dataset"),
			ChunkSize:           getEnvAsInt("CHUNK_SIZE", 25),
			ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.25),
			TopK:                getEnvAsInt("TOP_K", 3),
			SnippetMaxLength:    getEnvAsInt("CITATION_SNIPPET_MAX", 200),
		},
		VectorStore: VectorStoreConfig{
			Backend:          strings.ToLower(getEnv("VECTOR_STORE_BACKEND", BackendMemory)),
			SnapshotDir:      getEnv("VECTORSTORE_DIR", "artifacts/vectorstore"),
			ChromaURL:        getEnv("CHROMA_URL", "http://localhost:8000"),
			ChromaCollection: getEnv("CHROMA_COLLECTION", "dosm_chunks"),
			WatchDataset:     getEnvAsBool("WATCH_DATASET", false),
		},
		Embedding: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", "hash")),
			Model:     getEnv("EMBEDDING_MODEL_NAME", ""),
			OllamaURL: getEnv("OLLAMA_URL", "http://localhost:11434"),
			Dimension: getEnvAsInt("EMBEDDING_DIM", 0),
		},
		Generator: GeneratorConfig{
			Enabled:       getEnvAsBool("LLM_ENABLED", false),
			Provider:      strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:         getEnv("LLM_MODEL", ""),
			StubAnswer:    strings.TrimSpace(getEnv("LLM_STUB_ANSWER", "")),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 10*time.Second),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		},
		Auth: AuthConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}
}

// Validate checks struct constraints and the cross-field rules between sections
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Database.Enabled() && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return errors.New("database user is required when DB_HOST is set")
		}
		if c.Database.Database == "" {
			return errors.New("database name is required when DB_HOST is set")
		}
	}

	switch c.VectorStore.Backend {
	case BackendPGVector:
		if !c.Database.Enabled() {
			return errors.New("pgvector backend requires DATABASE_URL or DB_HOST")
		}
	case BackendChroma:
		if c.VectorStore.ChromaURL == "" {
			return errors.New("chroma backend requires CHROMA_URL")
		}
	case BackendSnapshot:
		if c.VectorStore.SnapshotDir == "" {
			return errors.New("snapshot backend requires VECTORSTORE_DIR")
		}
	}

	if c.Embedding.Provider == "openai" && c.Generator.OpenAIAPIKey == "" {
		return errors.New("openai embedding provider requires OPENAI_API_KEY")
	}

	// Without a stub the generator needs credentials in production
	if c.IsProduction() && c.Generator.Enabled && c.Generator.StubAnswer == "" {
		switch c.Generator.Provider {
		case "openai":
			if c.Generator.OpenAIAPIKey == "" {
				return errors.New("LLM_ENABLED with openai provider requires OPENAI_API_KEY in production")
			}
		case "gemini":
			if c.Generator.GeminiAPIKey == "" {
				return errors.New("LLM_ENABLED with gemini provider requires GEMINI_API_KEY in production")
			}
		}
	}

	if c.IsProduction() && c.Auth.APIKey == "" {
		return errors.New("API_KEY is required in production")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Enabled reports whether any database connection is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// SnapshotPath returns the snapshot file inside SnapshotDir.
func (c *VectorStoreConfig) SnapshotPath() string {
	return strings.TrimRight(c.SnapshotDir, "/") + "/index.json"
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	return LoadDatabaseConfig("DATABASE_URL")
}

// LoadDatabaseConfig reads a database section whose connection string lives in
// urlKey. The DB_* variables are only consulted when urlKey is unset.
func LoadDatabaseConfig(urlKey string) DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv(urlKey, ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	if urlKey != "DATABASE_URL" {
		return pool
	}

	pool.Host = getEnv("DB_HOST", "")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
