package querylog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/models"
	"github.com/faizmisman/dosm-faq-chatbot/repositories"
	"go.uber.org/zap"
)

var (
	ErrNotStarted     = errors.New("query log service not started")
	ErrAlreadyStarted = errors.New("query log service already started")
	ErrBufferFull     = errors.New("query log buffer full")
)

// Service writes prediction logs in the background. Logging is best-effort:
// a full buffer drops the entry instead of blocking the request.
type Service struct {
	repo         repositories.QueryLogRepository
	logger       *zap.Logger
	entries      chan *models.QueryLog
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration
	redactPII    bool
	wg           sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	written  atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
	redacted atomic.Int64
}

// Config holds configuration for the Service
type Config struct {
	BufferSize   int           // Size of the entry buffer channel
	WorkerCount  int           // Number of concurrent workers
	WriteTimeout time.Duration // Per-insert deadline
	RedactPII    bool          // Strip personal data from queries before storing
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
		RedactPII:    true,
	}
}

// NewService creates a new Service instance
func NewService(repo repositories.QueryLogRepository, logger *zap.Logger, config Config) *Service {
	def := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = def.WorkerCount
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}

	return &Service{
		repo:         repo,
		logger:       logger,
		entries:      make(chan *models.QueryLog, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		writeTimeout: config.WriteTimeout,
		redactPII:    config.RedactPII,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started query log service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop drains pending entries, waiting at most timeout.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	close(s.entries)
	s.mu.Unlock()

	s.logger.Info("stopping query log service", zap.Int("pending_entries", len(s.entries)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("query log service stopped",
			zap.Int64("written", s.written.Load()),
			zap.Int64("dropped", s.dropped.Load()),
			zap.Int64("failed", s.failed.Load()))
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("query log service stop timeout after %v", timeout)
	}
}

// Log queues an entry without blocking. With redaction enabled the stored
// query is a scrubbed copy; entry itself is not modified.
func (s *Service) Log(entry *models.QueryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	if s.redactPII {
		scrubbed := *entry
		var kinds []PIIKind
		scrubbed.Query, kinds = RedactPII(entry.Query)
		if len(kinds) > 0 {
			s.redacted.Add(1)
			s.logger.Debug("redacted query before logging",
				zap.String("request_id", entry.RequestID),
				zap.Any("kinds", kinds))
		}
		entry = &scrubbed
	}

	select {
	case s.entries <- entry:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("query log buffer full, dropping entry",
			zap.String("request_id", entry.RequestID))
		return ErrBufferFull
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	for entry := range s.entries {
		if err := s.write(entry); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to write query log",
				zap.Int("worker_id", id),
				zap.String("request_id", entry.RequestID),
				zap.Error(err))
			continue
		}
		s.written.Add(1)
	}
}

func (s *Service) write(entry *models.QueryLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}
	return nil
}

// Stats represents query log service statistics
type Stats struct {
	BufferSize     int   `json:"buffer_size"`
	PendingEntries int   `json:"pending_entries"`
	WorkerCount    int   `json:"worker_count"`
	Started        bool  `json:"started"`
	Written        int64 `json:"written"`
	Dropped        int64 `json:"dropped"`
	Failed         int64 `json:"failed"`
	Redacted       int64 `json:"redacted"`
}

// GetStats returns statistics about the service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:     s.bufferSize,
		PendingEntries: len(s.entries),
		WorkerCount:    s.workerCount,
		Started:        s.started && !s.stopped,
		Written:        s.written.Load(),
		Dropped:        s.dropped.Load(),
		Failed:         s.failed.Load(),
		Redacted:       s.redacted.Load(),
	}
}
