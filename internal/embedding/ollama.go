package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// LangchainEmbedder adapts a langchaingo embedder.
type LangchainEmbedder struct {
	name  string
	inner embeddings.Embedder
}

// NewLangchainEmbedder wraps any langchaingo embedder under the given name.
func NewLangchainEmbedder(name string, inner embeddings.Embedder) *LangchainEmbedder {
	return &LangchainEmbedder{name: name, inner: inner}
}

// NewOllamaEmbedder connects to an Ollama server through langchaingo.
func NewOllamaEmbedder(serverURL, model string) (*LangchainEmbedder, error) {
	if serverURL == "" {
		serverURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}

	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	inner, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama embedder: %w", err)
	}

	return NewLangchainEmbedder(ProviderOllama+":"+model, inner), nil
}

// Name returns provider and model.
func (e *LangchainEmbedder) Name() string {
	return e.name
}

// EmbedDocuments embeds texts in order.
func (e *LangchainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s: embed documents: %w", e.name, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d inputs", ErrEmptyEmbeddings, e.name, len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery embeds a single query.
func (e *LangchainEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%s: embed query: %w", e.name, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty query vector", ErrEmptyEmbeddings, e.name)
	}
	return vec, nil
}
