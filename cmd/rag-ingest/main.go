// Command rag-ingest chunks the dataset and writes embeddings to the
// configured vector store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/faizmisman/dosm-faq-chatbot/app"
	"github.com/faizmisman/dosm-faq-chatbot/config"
	"github.com/faizmisman/dosm-faq-chatbot/internal/ingest"
	"github.com/faizmisman/dosm-faq-chatbot/internal/observability"
	"github.com/faizmisman/dosm-faq-chatbot/internal/vectorindex"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rag-ingest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	dryRun, err := applyFlags(cfg, args)
	if err != nil {
		return err
	}
	return ingestWith(ctx, cfg, dryRun, out)
}

// applyFlags overrides the environment configuration from the command line.
func applyFlags(cfg *config.Config, args []string) (dryRun bool, err error) {
	fs := flag.NewFlagSet("rag-ingest", flag.ContinueOnError)
	fs.StringVar(&cfg.RAG.DatasetPath, "dataset", cfg.RAG.DatasetPath, "path to the dataset CSV")
	fs.IntVar(&cfg.RAG.ChunkSize, "chunk-size", cfg.RAG.ChunkSize, "rows per chunk")
	fs.StringVar(&cfg.VectorStore.Backend, "backend", cfg.VectorStore.Backend, "vector store: memory, snapshot, pgvector or chroma")
	fs.StringVar(&cfg.VectorStore.SnapshotDir, "snapshot-dir", cfg.VectorStore.SnapshotDir, "snapshot directory")
	fs.BoolVar(&dryRun, "dry-run", false, "chunk the dataset without embedding it")

	if err := fs.Parse(args); err != nil {
		return false, err
	}
	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("config validation failed: %w", err)
	}
	return dryRun, nil
}

func ingestWith(ctx context.Context, cfg *config.Config, dryRun bool, out io.Writer) error {
	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}

	cfg.VectorStore.WatchDataset = false
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	res, err := ingest.Run(ctx, ingest.Options{
		DatasetPath: cfg.RAG.DatasetPath,
		ChunkSize:   cfg.RAG.ChunkSize,
		Builder:     deps.IndexBuilder(),
		ExpectKind:  vectorindex.Kind(cfg.VectorStore.Backend),
		DryRun:      dryRun,
	}, logger)
	if err != nil {
		logger.Error("ingestion failed", zap.Error(err))
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
