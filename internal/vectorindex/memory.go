package vectorindex

import (
	"context"
	"fmt"

	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
	"github.com/faizmisman/dosm-faq-chatbot/internal/embedding"
	"go.uber.org/zap"
)

// MemoryIndex holds embedded chunks in process memory. Raw scores are the
// cosine similarity between query and chunk embeddings, in [-1,1].
//
// A lexical shadow over the same chunks answers queries whose embedding
// call fails, so a flaky embedding provider degrades ranking quality
// instead of failing the search.
type MemoryIndex struct {
	kind     Kind
	embedder embedding.Embedder
	chunks   []EmbeddedChunk
	shadow   *LexicalIndex
	logger   *zap.Logger
}

// NewMemoryIndex wraps pre-embedded chunks. The slice is copied.
func NewMemoryIndex(embedder embedding.Embedder, chunks []EmbeddedChunk, logger *zap.Logger) *MemoryIndex {
	owned := append([]EmbeddedChunk(nil), chunks...)
	plain := make([]dataset.Chunk, len(owned))
	for i, c := range owned {
		plain[i] = c.Chunk
	}

	return &MemoryIndex{
		kind:     KindMemory,
		embedder: embedder,
		chunks:   owned,
		shadow:   NewLexicalIndex(plain),
		logger:   logger,
	}
}

// Kind returns KindMemory, or KindSnapshot for an index restored from disk.
func (m *MemoryIndex) Kind() Kind { return m.kind }

// Len returns the number of chunks.
func (m *MemoryIndex) Len() int { return len(m.chunks) }

// EmbedderName returns the name of the embedder the vectors came from.
func (m *MemoryIndex) EmbedderName() string { return m.embedder.Name() }

// Chunks returns a copy of the embedded chunks.
func (m *MemoryIndex) Chunks() []EmbeddedChunk {
	return append([]EmbeddedChunk(nil), m.chunks...)
}

// Search ranks chunks by cosine similarity to the query embedding.
func (m *MemoryIndex) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	if k <= 0 || len(m.chunks) == 0 {
		return []Candidate{}, nil
	}

	vec, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		m.logger.Warn("query embedding failed, using lexical scoring",
			zap.String("embedder", m.embedder.Name()),
			zap.Error(err))
		return m.shadow.Search(ctx, query, k)
	}

	cands := make([]Candidate, len(m.chunks))
	for i, c := range m.chunks {
		cands[i] = Candidate{Chunk: c.Chunk, RawScore: cosine(vec, c.Embedding)}
	}
	return rankTop(cands, k), nil
}

func (m *MemoryIndex) withKind(kind Kind) *MemoryIndex {
	m.kind = kind
	return m
}

// EmbeddingBuilder embeds chunks and returns a MemoryIndex.
type EmbeddingBuilder struct {
	Embedder    embedding.Embedder
	ExpectedDim int
	Logger      *zap.Logger
}

// Build embeds every chunk. Embedding failures and dimension mismatches
// are returned as errors.
func (b *EmbeddingBuilder) Build(ctx context.Context, chunks []dataset.Chunk) (Index, error) {
	return b.BuildMemory(ctx, chunks)
}

// BuildMemory is Build with the concrete return type.
func (b *EmbeddingBuilder) BuildMemory(ctx context.Context, chunks []dataset.Chunk) (*MemoryIndex, error) {
	embedded, err := EmbedChunks(ctx, b.Embedder, chunks, b.ExpectedDim)
	if err != nil {
		return nil, err
	}

	b.Logger.Info("memory index built",
		zap.String("embedder", b.Embedder.Name()),
		zap.Int("chunks", len(embedded)))
	return NewMemoryIndex(b.Embedder, embedded, b.Logger), nil
}

// EmbedChunks embeds chunk content and validates the resulting vectors.
// An empty chunk list yields an empty result without calling the embedder.
func EmbedChunks(ctx context.Context, embedder embedding.Embedder, chunks []dataset.Chunk, expectedDim int) ([]EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return []EmbeddedChunk{}, nil
	}

	vectors, err := embedder.EmbedDocuments(ctx, chunkTexts(chunks))
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks with %s: %w", len(chunks), embedder.Name(), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", embedding.ErrEmptyEmbeddings, len(vectors), len(chunks))
	}
	if _, err := embedding.ValidateVectors(vectors, expectedDim); err != nil {
		return nil, err
	}

	out := make([]EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = EmbeddedChunk{Chunk: c, Embedding: vectors[i]}
	}
	return out, nil
}
