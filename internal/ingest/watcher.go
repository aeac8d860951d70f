// Package ingest keeps the served index in step with the dataset file.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events an editor or copy produces.
const DefaultDebounce = 2 * time.Second

// Rebuilder rebuilds the index from the current dataset.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// Watcher triggers a rebuild after the dataset file is written, created or
// renamed into place. Events for other files in the directory are ignored.
type Watcher struct {
	path      string
	debounce  time.Duration
	rebuilder Rebuilder
	logger    *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	rebuilds chan struct{}
}

// NewWatcher creates a watcher for path. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(path string, rebuilder Rebuilder, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:      filepath.Clean(path),
		debounce:  debounce,
		rebuilder: rebuilder,
		logger:    logger,
		rebuilds:  make(chan struct{}, 1),
	}
}

// Start watches the dataset's directory until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// the directory survives atomic replace-by-rename, the file does not
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true

	w.wg.Add(2)
	go w.loop(ctx, fsw)
	go w.rebuildLoop(ctx)

	w.logger.Info("watching dataset for changes",
		zap.String("path", w.path),
		zap.Duration("debounce", w.debounce))
	return nil
}

// Stop ends watching and waits for both loops to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	if w.timer != nil {
		w.timer.Stop()
	}
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.logger.Debug("dataset changed", zap.String("op", event.Op.String()))
				w.schedule()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("dataset watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.rebuilds <- struct{}{}:
		default:
			// a rebuild is already queued
		}
	})
}

// rebuildLoop runs rebuilds one at a time.
func (w *Watcher) rebuildLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.rebuilds:
			start := time.Now()
			if err := w.rebuilder.Rebuild(ctx); err != nil {
				w.logger.Warn("rebuild after dataset change failed, keeping previous index", zap.Error(err))
				continue
			}
			w.logger.Info("index rebuilt after dataset change", zap.Duration("duration", time.Since(start)))
		}
	}
}
