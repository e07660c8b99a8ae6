// Package audit records security and sync events without blocking callers.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"go.uber.org/zap"
)

// Notifier receives audit events. Implementations must not fail the caller.
type Notifier interface {
	Notify(e model.AuditEvent)
}

// DefaultQueueSize bounds events waiting for the writer.
const DefaultQueueSize = 1024

// Sink persists events through an AuditRepository from a single background writer.
// Notify only enqueues; a full queue or a failed write is logged and the event dropped.
type Sink struct {
	repo    repository.AuditRepository
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time

	queue  chan model.AuditEvent
	done   chan struct{}
	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool
}

var _ Notifier = (*Sink)(nil)

// NewSink starts a repository-backed notifier. Close it to flush pending events.
func NewSink(repo repository.AuditRepository, log *zap.Logger) *Sink {
	return newSink(repo, log, DefaultQueueSize)
}

func newSink(repo repository.AuditRepository, log *zap.Logger, size int) *Sink {
	s := &Sink{
		repo:    repo,
		log:     log,
		timeout: 2 * time.Second,
		now:     time.Now,
		queue:   make(chan model.AuditEvent, size),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Notify stamps e and hands it to the writer without waiting.
func (s *Sink) Notify(e model.AuditEvent) {
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Debug("audit sink closed, event dropped", zap.String("action", e.Action))
		return
	}
	select {
	case s.queue <- e:
	default:
		s.log.Warn("audit queue full, event dropped",
			zap.String("action", e.Action),
			zap.String("target", e.TargetID),
		)
	}
}

// Close stops accepting events and waits until queued ones are written.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.queue {
		s.write(e)
	}
}

// write uses its own deadline so events from cancelled requests still land.
func (s *Sink) write(e model.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.repo.Insert(ctx, e); err != nil {
		s.log.Warn("audit write failed",
			zap.String("action", e.Action),
			zap.String("target", e.TargetID),
			zap.Error(err),
		)
	}
}

// Log is a Notifier that only emits structured log lines.
type Log struct{ log *zap.Logger }

// NewLog constructs a log-only notifier.
func NewLog(log *zap.Logger) Log { return Log{log: log} }

// Notify logs e at info level.
func (l Log) Notify(e model.AuditEvent) {
	fields := []zap.Field{
		zap.String("action", e.Action),
		zap.String("actor", e.ActorID.String()),
		zap.String("target_type", e.TargetType),
		zap.String("target", e.TargetID),
	}
	for k, v := range e.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}
	l.log.Info("audit", fields...)
}

// Nop discards events.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(model.AuditEvent) {}
