// Command migrate-embeddings copies the embeddings table from the database
// in DATABASE_URL to the one in TARGET_DATABASE_URL and verifies the copy.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/faizmisman/dosm-faq-chatbot/config"
	"github.com/faizmisman/dosm-faq-chatbot/internal/ingest"
	"github.com/faizmisman/dosm-faq-chatbot/internal/observability"
	"github.com/faizmisman/dosm-faq-chatbot/repositories/postgres"
	"go.uber.org/zap"
)

const targetURLKey = "TARGET_DATABASE_URL"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "migrate-embeddings: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (ingest.MigrateOptions, error) {
	var opts ingest.MigrateOptions
	fs := flag.NewFlagSet("migrate-embeddings", flag.ContinueOnError)
	fs.IntVar(&opts.BatchSize, "batch-size", ingest.DefaultBatchSize, "rows per batch")
	fs.IntVar(&opts.SampleSize, "sample-size", ingest.DefaultSampleSize, "ids checked after the copy")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "count source rows without copying")
	fs.BoolVar(&opts.NoClear, "no-clear", false, "keep existing rows in the target")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.BatchSize <= 0 {
		return opts, fmt.Errorf("--batch-size must be positive, got %d", opts.BatchSize)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}
	defer logger.Sync()

	target := config.LoadDatabaseConfig(targetURLKey)
	if !cfg.Database.Enabled() {
		return errors.New("DATABASE_URL is required for the source database")
	}
	if target.ConnectionString == "" {
		return fmt.Errorf("%s is required", targetURLKey)
	}
	if target.ConnectionString == cfg.Database.ConnectionString {
		return errors.New("source and target databases are the same")
	}

	logger.Info("starting embeddings migration",
		zap.String("source", cfg.Database.LogString()),
		zap.String("target", target.LogString()),
		zap.Int("batch_size", opts.BatchSize),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("no_clear", opts.NoClear))

	src, err := postgres.NewRepositoryFactory(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to source: %w", err)
	}
	defer src.Close()

	dst, err := postgres.NewRepositoryFactory(target, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to target: %w", err)
	}
	defer dst.Close()

	res, err := ingest.Migrate(ctx, src.NewRepositories().Embeddings, dst.NewRepositories().Embeddings, opts, logger)
	if err != nil {
		logger.Error("migration failed", zap.Error(err), zap.Int("copied", res.Copied))
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
