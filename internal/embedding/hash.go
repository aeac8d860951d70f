package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/faizmisman/dosm-faq-chatbot/internal/textutil"
)

// DefaultHashDimension matches the width of common sentence-transformer models.
const DefaultHashDimension = 384

// HashEmbedder maps word tokens into a fixed number of buckets and
// l2-normalizes the counts. Identical text always yields identical vectors.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hashing embedder. dim <= 0 selects DefaultHashDimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

// Name returns the provider name.
func (e *HashEmbedder) Name() string {
	return ProviderHash
}

// Dimension returns the vector width.
func (e *HashEmbedder) Dimension() int {
	return e.dim
}

// EmbedDocuments embeds every text.
func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

// EmbedQuery embeds one text.
func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, tok := range textutil.WordTokens(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dim)]++
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
