package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
	"github.com/faizmisman/dosm-faq-chatbot/internal/embedding"
	"github.com/faizmisman/dosm-faq-chatbot/repositories"
	"go.uber.org/zap"
)

// Source opens or builds an index.
type Source interface {
	Name() string
	Open(ctx context.Context) (Index, error)
}

// Factory evaluates its sources in order and returns the first index that
// opens. The order is the fallback policy.
type Factory struct {
	sources []Source
	logger  *zap.Logger
}

// NewFactory creates a factory over sources.
func NewFactory(logger *zap.Logger, sources ...Source) *Factory {
	return &Factory{sources: sources, logger: logger}
}

// Sources returns the source names in evaluation order.
func (f *Factory) Sources() []string {
	names := make([]string, len(f.sources))
	for i, s := range f.sources {
		names[i] = s.Name()
	}
	return names
}

// Open returns the first successfully opened index. When every source
// fails the joined errors are wrapped in ErrUnavailable.
func (f *Factory) Open(ctx context.Context) (Index, error) {
	var errs []error
	for _, src := range f.sources {
		idx, err := src.Open(ctx)
		if err == nil {
			f.logger.Info("vector index opened",
				zap.String("source", src.Name()),
				zap.String("kind", string(idx.Kind())),
				zap.Int("chunks", idx.Len()))
			return idx, nil
		}
		f.logger.Warn("vector index source failed", zap.String("source", src.Name()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ErrUnavailable)
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// SnapshotSource loads a snapshot file.
type SnapshotSource struct {
	Path     string
	Embedder embedding.Embedder
	Logger   *zap.Logger
}

// Name returns "snapshot".
func (s *SnapshotSource) Name() string { return string(KindSnapshot) }

// Open loads the snapshot. A missing file is an error.
func (s *SnapshotSource) Open(ctx context.Context) (Index, error) {
	return LoadSnapshot(s.Path, s.Embedder, s.Logger)
}

// PGVectorSource attaches to the embeddings table.
type PGVectorSource struct {
	Repo     repositories.EmbeddingRepository
	Embedder embedding.Embedder
	Logger   *zap.Logger
}

// Name returns "pgvector".
func (s *PGVectorSource) Name() string { return string(KindPGVector) }

// Open fails when the table is empty or unreachable.
func (s *PGVectorSource) Open(ctx context.Context) (Index, error) {
	return OpenPGVector(ctx, s.Repo, s.Embedder, s.Logger)
}

// ChromaSource attaches to a Chroma collection.
type ChromaSource struct {
	URL        string
	Collection string
	Embedder   embedding.Embedder
	Logger     *zap.Logger
}

// Name returns "chroma".
func (s *ChromaSource) Name() string { return string(KindChroma) }

// Open connects and fails when the collection is empty.
func (s *ChromaSource) Open(ctx context.Context) (Index, error) {
	client, collection, err := ConnectChroma(ctx, s.URL, s.Collection)
	if err != nil {
		return nil, err
	}
	idx, err := OpenChroma(ctx, client, collection, s.Embedder, s.Logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// DatasetSource loads the CSV, chunks it and hands the chunks to Builder.
type DatasetSource struct {
	Path      string
	ChunkSize int
	Builder   Builder
	Logger    *zap.Logger
}

// Name returns "dataset".
func (s *DatasetSource) Name() string { return "dataset" }

// Open builds a fresh index from the dataset file.
func (s *DatasetSource) Open(ctx context.Context) (Index, error) {
	if s.Path == "" {
		return nil, fmt.Errorf("%w: no dataset path configured", dataset.ErrInvalidInput)
	}

	ds, err := dataset.LoadCSV(s.Path)
	if err != nil {
		return nil, err
	}

	chunks, err := dataset.BuildChunks(ds, s.ChunkSize)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("dataset chunked",
		zap.String("path", s.Path),
		zap.Int("rows", ds.RowCount()),
		zap.Int("chunks", len(chunks)))

	return s.Builder.Build(ctx, chunks)
}
