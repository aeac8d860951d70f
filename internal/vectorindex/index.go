// Package vectorindex stores embedded dataset chunks and answers top-k
// similarity queries over them.
//
// Every variant satisfies Index. Raw score semantics differ per variant and
// are documented on each type; callers normalize scores before comparing
// them with a threshold. Search is read-only and safe for concurrent use.
// Builders never mutate an existing index.
package vectorindex

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
)

// Kind tags an index variant.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindSnapshot Kind = "snapshot"
	KindPGVector Kind = "pgvector"
	KindChroma   Kind = "chroma"
	KindLexical  Kind = "lexical"
)

var (
	// ErrUnavailable is returned when no index could be opened or built.
	ErrUnavailable = errors.New("vector index unavailable")

	// ErrEmpty is returned by sources whose backing store holds no chunks.
	ErrEmpty = errors.New("vector index is empty")
)

// Candidate is one search hit.
type Candidate struct {
	Chunk    dataset.Chunk
	RawScore float64
}

// EmbeddedChunk is a chunk together with its embedding.
type EmbeddedChunk struct {
	dataset.Chunk
	Embedding []float32 `json:"embedding"`
}

// Index answers similarity queries.
type Index interface {
	Kind() Kind

	// Len returns the number of indexed chunks.
	Len() int

	// Search returns at most k candidates ordered by descending RawScore.
	Search(ctx context.Context, query string, k int) ([]Candidate, error)
}

// Builder builds a new index from chunks.
type Builder interface {
	Build(ctx context.Context, chunks []dataset.Chunk) (Index, error)
}

// rankTop orders candidates by descending score, breaking ties by row
// position, and keeps the first k. NaN scores sort last.
func rankTop(cands []Candidate, k int) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].RawScore, cands[j].RawScore
		switch {
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		case a != b:
			return a > b
		}
		return cands[i].Chunk.StartRow < cands[j].Chunk.StartRow
	})
	if k < len(cands) {
		cands = cands[:k]
	}
	return cands
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// chunkTexts returns the content of each chunk in order.
func chunkTexts(chunks []dataset.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return texts
}
