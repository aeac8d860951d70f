package vectorindex

import (
	"context"

	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
	"go.uber.org/zap"
)

// FallbackBuilder tries Primary and, when it fails, builds a lexical
// index over the same chunks. Build never returns an error.
type FallbackBuilder struct {
	Primary Builder
	Logger  *zap.Logger
}

// Build returns the primary index or the lexical fallback.
func (b *FallbackBuilder) Build(ctx context.Context, chunks []dataset.Chunk) (Index, error) {
	idx, err := b.Primary.Build(ctx, chunks)
	if err == nil {
		return idx, nil
	}

	b.Logger.Warn("embedding index build failed, falling back to lexical index",
		zap.Int("chunks", len(chunks)),
		zap.Error(err))
	return NewLexicalIndex(chunks), nil
}
