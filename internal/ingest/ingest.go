package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
	"github.com/faizmisman/dosm-faq-chatbot/internal/vectorindex"
	"go.uber.org/zap"
)

// ErrNoRows is returned when the dataset has a header but no data.
var ErrNoRows = fmt.Errorf("%w: dataset has no rows", dataset.ErrInvalidInput)

// ErrKindMismatch is returned when the builder stored the index somewhere
// other than the requested backend.
var ErrKindMismatch = errors.New("index stored in unexpected backend")

// Options configures one ingestion run.
type Options struct {
	DatasetPath string
	ChunkSize   int
	Builder     vectorindex.Builder
	// ExpectKind, when set, must match the kind of the built index.
	ExpectKind vectorindex.Kind
	// DryRun stops after chunking.
	DryRun bool
}

// Result summarizes an ingestion run.
type Result struct {
	Rows     int           `json:"rows"`
	Chunks   int           `json:"chunks"`
	Kind     string        `json:"kind,omitempty"`
	Stored   int           `json:"stored"`
	Duration time.Duration `json:"duration"`
}

// Run loads the dataset, chunks it and hands the chunks to the builder,
// which embeds, validates and persists them. Unlike the serving path there
// is no lexical fallback: any failure is returned.
func Run(ctx context.Context, opts Options, logger *zap.Logger) (Result, error) {
	start := time.Now()
	var res Result

	if opts.DatasetPath == "" {
		return res, fmt.Errorf("%w: no dataset path configured", dataset.ErrInvalidInput)
	}
	if opts.Builder == nil && !opts.DryRun {
		return res, errors.New("no index builder configured")
	}

	ds, err := dataset.LoadCSV(opts.DatasetPath)
	if err != nil {
		return res, err
	}
	res.Rows = ds.RowCount()
	if res.Rows == 0 {
		return res, ErrNoRows
	}

	chunks, err := dataset.BuildChunks(ds, opts.ChunkSize)
	if err != nil {
		return res, err
	}
	res.Chunks = len(chunks)

	logger.Info("dataset chunked",
		zap.String("path", opts.DatasetPath),
		zap.Int("rows", res.Rows),
		zap.Int("chunks", res.Chunks),
		zap.Bool("dry_run", opts.DryRun))

	if opts.DryRun {
		res.Duration = time.Since(start)
		return res, nil
	}

	idx, err := opts.Builder.Build(ctx, chunks)
	if err != nil {
		return res, fmt.Errorf("failed to build index: %w", err)
	}
	if closer, ok := idx.(io.Closer); ok {
		defer closer.Close()
	}

	res.Kind = string(idx.Kind())
	res.Stored = idx.Len()
	res.Duration = time.Since(start)

	if opts.ExpectKind != "" && idx.Kind() != opts.ExpectKind {
		return res, fmt.Errorf("%w: wanted %s, got %s", ErrKindMismatch, opts.ExpectKind, idx.Kind())
	}

	logger.Info("ingestion complete",
		zap.String("kind", res.Kind),
		zap.Int("stored", res.Stored),
		zap.Duration("duration", res.Duration))
	return res, nil
}
