// Package embedding turns chunk text and queries into dense vectors.
//
// Three providers are available: a deterministic feature-hashing embedder
// that needs no network, the OpenAI embeddings API, and a local Ollama
// server reached through langchaingo.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

var (
	// ErrUnknownProvider is returned by New for an unrecognized provider name.
	ErrUnknownProvider = errors.New("unknown embedding provider")

	// ErrEmptyEmbeddings is returned when a provider answers with no vectors.
	ErrEmptyEmbeddings = errors.New("no embeddings produced")

	// ErrDimensionMismatch is returned when vectors disagree on dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder produces one vector per input text.
type Embedder interface {
	// Name identifies the provider and model, e.g. "openai:text-embedding-3-small".
	Name() string

	// EmbedDocuments embeds texts in order. The result has len(texts) vectors.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config selects and configures an embedding provider.
type Config struct {
	Provider      string
	Model         string
	Dimension     int
	OllamaURL     string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// New builds the embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHash:
		return NewHashEmbedder(cfg.Dimension), nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("openai embedder requires an API key")
		}
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.Model,
		}), nil
	case ProviderOllama:
		return NewOllamaEmbedder(cfg.OllamaURL, cfg.Model)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// ValidateVectors checks a batch of embeddings before it is persisted: the
// batch must be non-empty, every vector must share one non-zero dimension,
// and that dimension must equal expectedDim when expectedDim > 0. It returns
// the common dimension.
func ValidateVectors(vectors [][]float32, expectedDim int) (int, error) {
	if len(vectors) == 0 {
		return 0, ErrEmptyEmbeddings
	}

	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: vector 0 is empty", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	if expectedDim > 0 && dim != expectedDim {
		return 0, fmt.Errorf("%w: got %d, configured %d", ErrDimensionMismatch, dim, expectedDim)
	}
	return dim, nil
}
