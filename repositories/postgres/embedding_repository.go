package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/models"
	"github.com/faizmisman/dosm-faq-chatbot/repositories"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// EmbeddingRepository implements repositories.EmbeddingRepository on pgvector
type EmbeddingRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEmbeddingRepository creates a new embedding repository
func NewEmbeddingRepository(db *DB, logger *zap.Logger) repositories.EmbeddingRepository {
	return &EmbeddingRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the embeddings table. dimension <= 0 leaves the
// vector column unsized.
func (r *EmbeddingRepository) EnsureSchema(ctx context.Context, dimension int) error {
	column := "vector"
	if dimension > 0 {
		column = fmt.Sprintf("vector(%d)", dimension)
	}

	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding %s NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_embeddings_created_at ON embeddings(created_at);
	`, column)

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize embeddings schema: %w", err)
	}
	return nil
}

// Upsert inserts or replaces records by id. Call it inside
// TransactionManager.InTransaction to make a batch atomic.
func (r *EmbeddingRepository) Upsert(ctx context.Context, records []*models.EmbeddingRecord) error {
	query := `
		INSERT INTO embeddings (id, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3::vector, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			created_at = EXCLUDED.created_at
	`

	executor := GetExecutor(ctx, r.db)
	for _, rec := range records {
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		_, err := executor.ExecContext(ctx, query,
			rec.ID,
			rec.Content,
			pgvector.NewVector(rec.Embedding),
			metadataParam(rec),
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert embedding %s: %w", rec.ID, err)
		}
	}

	r.logger.Debug("embeddings upserted", zap.Int("count", len(records)))
	return nil
}

// Search returns the k nearest records by cosine distance (<=>), closest first
func (r *EmbeddingRepository) Search(ctx context.Context, query []float32, k int) ([]*models.ScoredEmbedding, error) {
	if k <= 0 {
		return []*models.ScoredEmbedding{}, nil
	}

	sqlQuery := `
		SELECT id, content, metadata, created_at, embedding <=> $1::vector AS distance
		FROM embeddings
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, sqlQuery, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	results := make([]*models.ScoredEmbedding, 0, k)
	for rows.Next() {
		hit := &models.ScoredEmbedding{}
		var metadata []byte
		if err := rows.Scan(&hit.ID, &hit.Content, &metadata, &hit.CreatedAt, &hit.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		hit.Metadata = metadata
		results = append(results, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embeddings: %w", err)
	}

	return results, nil
}

// Count returns the number of stored embeddings
func (r *EmbeddingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return count, nil
}

// FetchBatch pages through records ordered by created_at, id
func (r *EmbeddingRepository) FetchBatch(ctx context.Context, offset, limit int) ([]*models.EmbeddingRecord, error) {
	query := `
		SELECT id, content, embedding, metadata, created_at
		FROM embeddings
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch embeddings: %w", err)
	}
	defer rows.Close()

	var records []*models.EmbeddingRecord
	for rows.Next() {
		rec := &models.EmbeddingRecord{}
		var vector pgvector.Vector
		var metadata []byte
		if err := rows.Scan(&rec.ID, &rec.Content, &vector, &metadata, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding after %d records: %w", len(records), err)
		}
		rec.Embedding = vector.Slice()
		rec.Metadata = metadata
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embeddings: %w", err)
	}

	return records, nil
}

// SampleIDs returns up to n ids ordered by created_at
func (r *EmbeddingRepository) SampleIDs(ctx context.Context, n int) ([]string, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, `SELECT id FROM embeddings ORDER BY created_at, id LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to sample embedding ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountIDs returns how many of the given ids exist
func (r *EmbeddingRepository) CountIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var count int64
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE id = ANY($1)`, pq.Array(ids)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count embedding ids: %w", err)
	}
	return count, nil
}

// DeleteAll removes every stored embedding. It uses DELETE rather than
// TRUNCATE so concurrent readers are not blocked by an ACCESS EXCLUSIVE
// lock while a rebuild transaction is open.
func (r *EmbeddingRepository) DeleteAll(ctx context.Context) error {
	executor := GetExecutor(ctx, r.db)
	res, err := executor.ExecContext(ctx, `DELETE FROM embeddings`)
	if err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	deleted, _ := res.RowsAffected()
	r.logger.Info("embeddings deleted", zap.Int64("count", deleted))
	return nil
}

// metadataParam passes JSONB as text; lib/pq would send []byte as bytea.
func metadataParam(rec *models.EmbeddingRecord) interface{} {
	if len(rec.Metadata) == 0 {
		return nil
	}
	return string(rec.Metadata)
}
