// Package audit records file operations on a best-effort side channel.
// Callers never see write failures; they surface as logs and metrics.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jun/drivegate/internal/metrics"
	"github.com/jun/drivegate/internal/model"
	"github.com/jun/drivegate/internal/store"
)

const writeTimeout = 5 * time.Second

// Logger queues entries and persists them from a single worker goroutine.
type Logger struct {
	store   store.AuditStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	queue chan model.AuditLogEntry
	done  chan struct{}

	// queued and written count entries accepted and attempted. The single
	// worker attempts them in order, so written never passes queued.
	mu      sync.Mutex
	advance *sync.Cond
	queued  uint64
	written uint64
	closed  bool
}

// New starts a Logger with room for size queued entries.
func New(s store.AuditStore, size int, logger *slog.Logger, m *metrics.Metrics) *Logger {
	if size <= 0 {
		size = 1
	}
	l := &Logger{
		store:   s,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		queue:   make(chan model.AuditLogEntry, size),
		done:    make(chan struct{}),
	}
	l.advance = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Record enqueues e. It never blocks; a full queue drops the entry.
func (l *Logger) Record(ctx context.Context, e model.AuditLogEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		l.drop(ctx, e, "logger closed")
		return
	}
	select {
	case l.queue <- e:
		l.queued++
	default:
		l.drop(ctx, e, "queue full")
	}
}

func (l *Logger) drop(ctx context.Context, e model.AuditLogEntry, reason string) {
	l.metrics.AuditDropped.Inc()
	l.logger.WarnContext(ctx, "audit entry dropped",
		slog.String("reason", reason),
		slog.String("action", string(e.Action)),
		slog.String("user_id", e.UserID),
	)
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.queue {
		l.write(e)
		l.mu.Lock()
		l.written++
		l.advance.Broadcast()
		l.mu.Unlock()
	}
}

func (l *Logger) write(e model.AuditLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := l.store.AppendAudit(ctx, &e); err != nil {
		l.metrics.AuditFailed.Inc()
		l.logger.Error("audit write failed",
			slog.String("error", err.Error()),
			slog.String("audit_id", e.ID),
			slog.String("action", string(e.Action)),
			slog.String("user_id", e.UserID),
		)
		return
	}
	l.metrics.AuditWritten.Inc()
}

// Flush blocks until every entry queued before the call has been
// attempted. Entries recorded afterwards, by this or any other goroutine,
// do not extend the wait.
func (l *Logger) Flush() {
	l.waitFor(l.mark())
}

func (l *Logger) mark() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queued
}

func (l *Logger) waitFor(seq uint64) {
	l.mu.Lock()
	for l.written < seq {
		l.advance.Wait()
	}
	l.mu.Unlock()
}

// Close drains the queue and stops the worker. Entries recorded afterwards
// are dropped.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	<-l.done
}
