package vectorindex

import (
	"context"
	"fmt"

	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
	"github.com/faizmisman/dosm-faq-chatbot/internal/embedding"
	"github.com/faizmisman/dosm-faq-chatbot/models"
	"github.com/faizmisman/dosm-faq-chatbot/repositories"
	"go.uber.org/zap"
)

// PGVectorIndex searches the embeddings table with one round-trip per
// query. Raw scores are cosine similarity, computed as 1 - (embedding <=> query).
type PGVectorIndex struct {
	repo     repositories.EmbeddingRepository
	embedder embedding.Embedder
	size     int
	logger   *zap.Logger
}

// OpenPGVector attaches to an already-populated embeddings table.
func OpenPGVector(ctx context.Context, repo repositories.EmbeddingRepository, embedder embedding.Embedder, logger *zap.Logger) (*PGVectorIndex, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: embeddings table has no rows", ErrEmpty)
	}
	return &PGVectorIndex{repo: repo, embedder: embedder, size: int(count), logger: logger}, nil
}

// Kind returns KindPGVector.
func (p *PGVectorIndex) Kind() Kind { return KindPGVector }

// Len returns the row count observed when the index was opened.
func (p *PGVectorIndex) Len() int { return p.size }

// Search embeds the query and asks Postgres for the nearest rows.
func (p *PGVectorIndex) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	if k <= 0 {
		return []Candidate{}, nil
	}

	vec, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := p.repo.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		cands = append(cands, Candidate{
			Chunk:    chunkFromRecord(&hit.EmbeddingRecord),
			RawScore: hit.Similarity(),
		})
	}
	return rankTop(cands, k), nil
}

// chunkFromRecord restores the row range from metadata, falling back to the id.
func chunkFromRecord(rec *models.EmbeddingRecord) dataset.Chunk {
	c := dataset.Chunk{ID: rec.ID, Content: rec.Content}
	if meta, ok := rec.ChunkMetadata(); ok {
		c.StartRow, c.EndRow = meta.StartRow, meta.EndRow
		return c
	}
	if start, end, ok := dataset.ParseChunkID(rec.ID); ok {
		c.StartRow, c.EndRow = start, end-1
	}
	return c
}

// PGVectorBuilder embeds chunks and replaces the contents of the
// embeddings table in a single transaction.
type PGVectorBuilder struct {
	Repo        repositories.EmbeddingRepository
	Tx          repositories.TransactionManager
	Embedder    embedding.Embedder
	ExpectedDim int
	Source      string
	Logger      *zap.Logger
}

// Build stores every chunk and returns an index over the table.
func (b *PGVectorBuilder) Build(ctx context.Context, chunks []dataset.Chunk) (Index, error) {
	embedded, err := EmbedChunks(ctx, b.Embedder, chunks, b.ExpectedDim)
	if err != nil {
		return nil, err
	}

	dim := 0
	if len(embedded) > 0 {
		dim = len(embedded[0].Embedding)
	}
	if err := b.Repo.EnsureSchema(ctx, dim); err != nil {
		return nil, err
	}

	records := make([]*models.EmbeddingRecord, len(embedded))
	for i, c := range embedded {
		records[i] = models.NewEmbeddingRecord(c.ID, c.Content, c.Embedding, models.ChunkMetadata{
			StartRow: c.StartRow,
			EndRow:   c.EndRow,
			Source:   b.Source,
			Embedder: b.Embedder.Name(),
		})
	}

	err = b.Tx.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		if err := b.Repo.DeleteAll(ctx); err != nil {
			return err
		}
		return b.Repo.Upsert(ctx, records)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store embeddings: %w", err)
	}

	b.Logger.Info("pgvector index built", zap.Int("chunks", len(records)), zap.Int("dimension", dim))
	return &PGVectorIndex{repo: b.Repo, embedder: b.Embedder, size: len(records), logger: b.Logger}, nil
}
