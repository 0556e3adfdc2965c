package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/askllm/models"
	"github.com/upb/askllm/repositories"
)

var (
	// ErrDisabled is returned by queries when no audit database is configured
	ErrDisabled = errors.New("audit ledger disabled")

	// ErrBufferFull is returned when an entry is dropped because workers are behind
	ErrBufferFull = errors.New("audit event buffer full")

	// ErrNotStarted is returned when recording before Start or after Stop
	ErrNotStarted = errors.New("audit service not started")
)

// Recorder is what the dispatch layer writes to after every forward
type Recorder interface {
	// Record queues an entry without blocking the caller
	Record(ctx context.Context, entry *models.AuditEntry) error

	// Recent returns the newest entries first
	Recent(ctx context.Context, limit int) ([]*models.AuditEntry, error)

	// CountByAlias returns how many entries each alias has
	CountByAlias(ctx context.Context) (map[string]int, error)

	// Enabled reports whether entries are persisted
	Enabled() bool

	// Close flushes pending entries
	Close() error
}

// AuditService writes entries through a pool of background workers
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *models.AuditEntry
	workerCount int
	bufferSize  int
	stopTimeout time.Duration
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	mu          sync.RWMutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int           // Size of the event buffer channel
	WorkerCount int           // Number of concurrent workers
	StopTimeout time.Duration // How long Close waits for pending entries
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
		StopTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultConfig().StopTimeout
	}

	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger.With(zap.String("component", "audit")),
		eventChan:   make(chan *models.AuditEntry, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		stopTimeout: config.StopTimeout,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop closes the queue and waits for workers to drain it
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues an entry (non-blocking). A full buffer drops the entry.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditEntry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- entry:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping entry",
			zap.String("id", entry.ID.String()),
			zap.String("llm", entry.Alias))
		return ErrBufferFull
	}
}

// Recent reads straight from the repository
func (s *AuditService) Recent(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	return s.auditRepo.Recent(ctx, limit)
}

// CountByAlias reads straight from the repository
func (s *AuditService) CountByAlias(ctx context.Context) (map[string]int, error) {
	return s.auditRepo.CountByAlias(ctx)
}

// Enabled is always true for a repository-backed service
func (s *AuditService) Enabled() bool { return true }

// Close stops the workers with the configured timeout
func (s *AuditService) Close() error {
	return s.Stop(s.stopTimeout)
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for entry := range s.eventChan {
		if err := s.processEvent(entry); err != nil {
			s.logger.Error("failed to process audit entry",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("id", entry.ID.String()),
				zap.String("llm", entry.Alias))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) processEvent(entry *models.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// NoopRecorder discards entries; used when ASKLLM_AUDIT_DSN is empty
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, *models.AuditEntry) error { return nil }

func (NoopRecorder) Recent(context.Context, int) ([]*models.AuditEntry, error) {
	return nil, ErrDisabled
}

func (NoopRecorder) CountByAlias(context.Context) (map[string]int, error) {
	return nil, ErrDisabled
}

func (NoopRecorder) Enabled() bool { return false }

func (NoopRecorder) Close() error { return nil }
