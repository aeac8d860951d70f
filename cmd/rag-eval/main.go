// Command rag-eval runs a query set through the pipeline, locally or
// against a running server, and writes a JSON report.
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
	"path/filepath"
	"syscall"

	"github.com/faizmisman/dosm-faq-chatbot/app"
	"github.com/faizmisman/dosm-faq-chatbot/config"
	"github.com/faizmisman/dosm-faq-chatbot/internal/eval"
	"github.com/faizmisman/dosm-faq-chatbot/internal/observability"
	"go.uber.org/zap"
)

type options struct {
	queries string
	out     string
	url     string
	apiKey  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rag-eval: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("rag-eval", flag.ContinueOnError)
	fs.StringVar(&opts.queries, "queries", "", "JSONL file of evaluation queries")
	fs.StringVar(&opts.out, "out", "", "report path (default stdout)")
	fs.StringVar(&opts.url, "url", "", "predict endpoint of a running server; empty runs the pipeline in-process")
	fs.StringVar(&opts.apiKey, "api-key", os.Getenv("API_KEY"), "API key sent to the remote server")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.queries == "" {
		return opts, errors.New("--queries is required")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	queries, err := eval.LoadFile(opts.queries)
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

	var answerer eval.Answerer
	if opts.url != "" {
		answerer = eval.NewRemoteAnswerer(opts.url, opts.apiKey)
	} else {
		cfg.VectorStore.WatchDataset = false
		deps, err := app.NewDependencies(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer deps.Close(context.Background())
		answerer = eval.PipelineAnswerer{Pipeline: deps.Pipeline}
	}

	report := eval.Run(ctx, answerer, queries, logger)
	logger.Info("evaluation complete",
		zap.Int("count", report.Summary.Count),
		zap.Float64("hit_rate", report.Summary.HitRate),
		zap.Int64("latency_p95_ms", report.Summary.LatencyP95Ms))

	return writeReport(report, opts.out, stdout)
}

// writeReport writes to path, creating parent directories, or to stdout
// when path is empty.
func writeReport(report eval.Report, path string, stdout io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
