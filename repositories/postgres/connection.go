package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(db, logger), nil
}

// Wrap adopts an already-open pool, e.g. a sqlmock connection in tests.
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// InitSchema creates the pgvector extension and the query log table.
// The embeddings table is sized by the embedder and is created by
// EmbeddingRepository.EnsureSchema.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS query_logs (
			id UUID PRIMARY KEY,
			request_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(255),
			query TEXT NOT NULL,
			answer TEXT NOT NULL,
			model_version VARCHAR(100) NOT NULL,
			latency_ms INTEGER NOT NULL,
			failure_mode VARCHAR(32),
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_refusal BOOLEAN NOT NULL DEFAULT false,
			is_low_confidence BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_query_logs_request_id ON query_logs(request_id);
		CREATE INDEX IF NOT EXISTS idx_query_logs_created_at ON query_logs(created_at);
		CREATE INDEX IF NOT EXISTS idx_query_logs_failure_mode ON query_logs(failure_mode);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
