package models

import (
	"encoding/json"
	"time"
)

// ChunkMetadata is stored as JSONB next to each embedding
type ChunkMetadata struct {
	StartRow int    `json:"start_row"`
	EndRow   int    `json:"end_row"`
	Source   string `json:"source,omitempty"`
	Embedder string `json:"embedder,omitempty"`
}

// EmbeddingRecord represents one embedded dataset chunk
type EmbeddingRecord struct {
	ID        string          `json:"id" db:"id"` // chunk id, e.g. chunk_0_25
	Content   string          `json:"content" db:"content"`
	Embedding []float32       `json:"embedding" db:"embedding"`
	Metadata  json.RawMessage `json:"metadata" db:"metadata"` // JSONB
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the EmbeddingRecord model
func (EmbeddingRecord) TableName() string {
	return "embeddings"
}

// NewEmbeddingRecord creates a record with encoded metadata
func NewEmbeddingRecord(id, content string, embedding []float32, meta ChunkMetadata) *EmbeddingRecord {
	rec := &EmbeddingRecord{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		CreatedAt: time.Now().UTC(),
	}
	if data, err := json.Marshal(meta); err == nil {
		rec.Metadata = data
	}
	return rec
}

// ChunkMetadata decodes the metadata column. Missing or malformed metadata
// yields the zero value and ok=false.
func (r *EmbeddingRecord) ChunkMetadata() (ChunkMetadata, bool) {
	var meta ChunkMetadata
	if len(r.Metadata) == 0 {
		return meta, false
	}
	if err := json.Unmarshal(r.Metadata, &meta); err != nil {
		return ChunkMetadata{}, false
	}
	return meta, true
}

// ScoredEmbedding is a search hit with its cosine distance to the query
type ScoredEmbedding struct {
	EmbeddingRecord
	Distance float64 `json:"distance"`
}

// Similarity converts the cosine distance into cosine similarity.
func (s *ScoredEmbedding) Similarity() float64 {
	return 1 - s.Distance
}
