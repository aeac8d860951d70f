package repositories

import (
	"context"
	"errors"

	"github.com/faizmisman/dosm-faq-chatbot/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// EmbeddingRepository stores chunk embeddings in a pgvector table
type EmbeddingRepository interface {
	// EnsureSchema creates the vector extension and the embeddings table
	EnsureSchema(ctx context.Context, dimension int) error

	// Upsert inserts or replaces records by id
	Upsert(ctx context.Context, records []*models.EmbeddingRecord) error

	// Search returns the k nearest records by cosine distance, closest first
	Search(ctx context.Context, query []float32, k int) ([]*models.ScoredEmbedding, error)

	// Count returns the number of stored embeddings
	Count(ctx context.Context) (int64, error)

	// FetchBatch pages through records ordered by created_at, id
	FetchBatch(ctx context.Context, offset, limit int) ([]*models.EmbeddingRecord, error)

	// SampleIDs returns up to n ids ordered by created_at
	SampleIDs(ctx context.Context, n int) ([]string, error)

	// CountIDs returns how many of the given ids exist
	CountIDs(ctx context.Context, ids []string) (int64, error)

	// DeleteAll removes every stored embedding
	DeleteAll(ctx context.Context) error
}

// QueryLogRepository persists prediction logs
type QueryLogRepository interface {
	// Insert inserts a new query log entry
	Insert(ctx context.Context, log *models.QueryLog) error

	// GetByRequestID retrieves a log entry by request id
	GetByRequestID(ctx context.Context, requestID string) (*models.QueryLog, error)

	// ListRecent returns the newest entries first
	ListRecent(ctx context.Context, limit int) ([]*models.QueryLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Embeddings EmbeddingRepository
	QueryLogs  QueryLogRepository
}
