package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/faizmisman/dosm-faq-chatbot/repositories"
	"go.uber.org/zap"
)

// Defaults for embedding migration.
const (
	DefaultBatchSize  = 500
	DefaultSampleSize = 10
)

// ErrVerificationFailed is returned when the target does not hold what was copied.
var ErrVerificationFailed = errors.New("migration verification failed")

// MigrateOptions configures an embeddings copy.
type MigrateOptions struct {
	BatchSize  int
	SampleSize int
	DryRun     bool
	// NoClear keeps existing target rows; copied ids overwrite them.
	NoClear bool
}

// MigrateResult reports what was copied.
type MigrateResult struct {
	SourceCount   int64 `json:"source_count"`
	Copied        int   `json:"copied"`
	Batches       int   `json:"batches"`
	TargetCount   int64 `json:"target_count"`
	SampleSize    int   `json:"sample_size"`
	SampleFound   int64 `json:"sample_found"`
	DryRun        bool  `json:"dry_run"`
	TargetCleared bool  `json:"target_cleared"`
}

// Migrate copies every embedding from src to dst in batches, then checks
// the target count and a sample of ids.
func Migrate(ctx context.Context, src, dst repositories.EmbeddingRepository, opts MigrateOptions, logger *zap.Logger) (MigrateResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}

	res := MigrateResult{DryRun: opts.DryRun}

	total, err := src.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to count source embeddings: %w", err)
	}
	res.SourceCount = total
	logger.Info("source embeddings counted", zap.Int64("count", total))

	if opts.DryRun || total == 0 {
		return res, nil
	}

	schemaReady := false
	for offset := 0; ; offset += opts.BatchSize {
		batch, err := src.FetchBatch(ctx, offset, opts.BatchSize)
		if err != nil {
			return res, fmt.Errorf("failed to read batch at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		if !schemaReady {
			if err := dst.EnsureSchema(ctx, len(batch[0].Embedding)); err != nil {
				return res, fmt.Errorf("failed to prepare target schema: %w", err)
			}
			if !opts.NoClear {
				if err := dst.DeleteAll(ctx); err != nil {
					return res, fmt.Errorf("failed to clear target: %w", err)
				}
				res.TargetCleared = true
			}
			schemaReady = true
		}

		if err := dst.Upsert(ctx, batch); err != nil {
			return res, fmt.Errorf("failed to write batch at offset %d: %w", offset, err)
		}
		res.Copied += len(batch)
		res.Batches++
		logger.Info("batch copied",
			zap.Int("batch", res.Batches),
			zap.Int("copied", res.Copied),
			zap.Int64("total", total))

		if len(batch) < opts.BatchSize {
			break
		}
	}

	return res, verify(ctx, src, dst, opts, &res, logger)
}

func verify(ctx context.Context, src, dst repositories.EmbeddingRepository, opts MigrateOptions, res *MigrateResult, logger *zap.Logger) error {
	count, err := dst.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count target embeddings: %w", err)
	}
	res.TargetCount = count

	// without clearing the target may hold extra rows
	if count < res.SourceCount || (res.TargetCleared && count != res.SourceCount) {
		return fmt.Errorf("%w: source has %d rows, target has %d", ErrVerificationFailed, res.SourceCount, count)
	}

	ids, err := src.SampleIDs(ctx, opts.SampleSize)
	if err != nil {
		return fmt.Errorf("failed to sample source ids: %w", err)
	}
	res.SampleSize = len(ids)
	if len(ids) == 0 {
		return nil
	}

	found, err := dst.CountIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to check sampled ids: %w", err)
	}
	res.SampleFound = found
	if found != int64(len(ids)) {
		return fmt.Errorf("%w: %d of %d sampled ids found in target", ErrVerificationFailed, found, len(ids))
	}

	logger.Info("migration verified",
		zap.Int64("target_count", count),
		zap.Int("sampled", len(ids)))
	return nil
}
