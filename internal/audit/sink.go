// Package audit records audit log entries without blocking the operation that produced them.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/model"
	"github.com/homegate/server/internal/repo"
)

// Meta describes the request an audited action came from.
type Meta struct {
	IP        string
	UserAgent string
}

// Recorder accepts audit entries. Implementations must not block or fail the caller.
type Recorder interface {
	Record(e model.AuditLogEntry)
}

// Entry builds an audit entry for a user action.
func Entry(userID uuid.UUID, deviceID string, action string, meta Meta, metadata map[string]any) model.AuditLogEntry {
	e := model.AuditLogEntry{
		UserID:    &userID,
		Action:    action,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Metadata:  metadata,
	}
	if deviceID != "" {
		e.DeviceID = &deviceID
	}
	return e
}

// Sink writes entries to an AuditRepo from a single background worker.
type Sink struct {
	repo    repo.AuditRepo
	entries chan model.AuditLogEntry
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewSink starts the worker. buffer bounds the number of pending entries.
func NewSink(r repo.AuditRepo, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 1
	}
	s := &Sink{
		repo:    r,
		entries: make(chan model.AuditLogEntry, buffer),
		timeout: 5 * time.Second,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Record enqueues e. When the buffer is full or the sink is closed the entry is dropped.
func (s *Sink) Record(e model.AuditLogEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		slog.Warn("audit sink closed, dropping entry", "action", e.Action)
		return
	}
	select {
	case s.entries <- e:
	default:
		slog.Warn("audit buffer full, dropping entry", "action", e.Action)
	}
}

func (s *Sink) run() {
	defer s.wg.Done()
	for e := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.repo.Append(ctx, e); err != nil {
			slog.Error("audit append failed", "action", e.Action, "error", err)
		}
		cancel()
	}
}

// Close stops accepting entries and waits for pending ones to be written, or for ctx to end.
func (s *Sink) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.entries)
		s.mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
