package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/internal/dataset"
	"github.com/faizmisman/dosm-faq-chatbot/internal/embedding"
	"go.uber.org/zap"
)

const snapshotVersion = 1

// ErrSnapshotMismatch is returned when a snapshot was written by a
// different embedder than the one used to embed queries.
var ErrSnapshotMismatch = errors.New("snapshot embedder mismatch")

type snapshotFile struct {
	Version   int             `json:"version"`
	Embedder  string          `json:"embedder"`
	Dimension int             `json:"dimension"`
	CreatedAt time.Time       `json:"created_at"`
	Chunks    []EmbeddedChunk `json:"chunks"`
}

// SaveSnapshot writes idx to path. The file is written to a temporary
// name in the same directory and renamed into place.
func SaveSnapshot(path string, idx *MemoryIndex) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	snap := snapshotFile{
		Version:   snapshotVersion,
		Embedder:  idx.EmbedderName(),
		CreatedAt: time.Now().UTC(),
		Chunks:    idx.chunks,
	}
	if len(idx.chunks) > 0 {
		snap.Dimension = len(idx.chunks[0].Embedding)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(&snap); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot restores a MemoryIndex from path without embedding any
// chunk. Queries are embedded with embedder, whose name must match the
// one recorded in the snapshot.
func LoadSnapshot(path string, embedder embedding.Embedder, logger *zap.Logger) (*MemoryIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	var snap snapshotFile
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Embedder != embedder.Name() {
		return nil, fmt.Errorf("%w: snapshot has %q, configured %q", ErrSnapshotMismatch, snap.Embedder, embedder.Name())
	}
	if len(snap.Chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	for _, c := range snap.Chunks {
		if len(c.Embedding) != snap.Dimension {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, snapshot declares %d",
				embedding.ErrDimensionMismatch, c.ID, len(c.Embedding), snap.Dimension)
		}
	}

	return NewMemoryIndex(embedder, snap.Chunks, logger).withKind(KindSnapshot), nil
}

// SnapshotBuilder builds a memory index and persists it to Path.
type SnapshotBuilder struct {
	Inner  *EmbeddingBuilder
	Path   string
	Logger *zap.Logger
}

// Build embeds chunks, saves the snapshot and returns the index. A failed
// save is logged and the in-memory index is still returned.
func (b *SnapshotBuilder) Build(ctx context.Context, chunks []dataset.Chunk) (Index, error) {
	idx, err := b.Inner.BuildMemory(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if err := SaveSnapshot(b.Path, idx); err != nil {
		b.Logger.Warn("failed to persist snapshot", zap.String("path", b.Path), zap.Error(err))
		return idx, nil
	}

	b.Logger.Info("snapshot saved", zap.String("path", b.Path), zap.Int("chunks", idx.Len()))
	return idx.withKind(KindSnapshot), nil
}
