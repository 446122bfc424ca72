package audit

import (
	"sync"

	"github.com/homegate/server/internal/model"
)

// Memory is a synchronous Recorder that keeps entries in memory. Used in tests.
type Memory struct {
	mu      sync.Mutex
	entries []model.AuditLogEntry
}

func (m *Memory) Record(e model.AuditLogEntry) {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (m *Memory) Entries() []model.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditLogEntry(nil), m.entries...)
}

// Actions returns the recorded action tags in order.
func (m *Memory) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}
