package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Operation names the kind of access being recorded.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpMerge  Operation = "merge"
	OpDelete Operation = "delete"
	OpQuery  Operation = "query"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpMerge, OpDelete, OpQuery:
		return true
	}
	return false
}

// Entry is one audited access. Before and After are attribute snapshots;
// Before is nil for inserts and After is nil for deletes. Query entries
// carry the executed SQL in Statement and no snapshots.
type Entry struct {
	ID         string         `json:"id"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id,omitempty"`
	Operation  Operation      `json:"operation"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	Statement  string         `json:"statement,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Recorder persists audit entries. Implementations must write through the
// transaction carried by ctx when there is one.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Memory is an in-process Recorder for tests and tools.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

// NewMemory returns an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

// Record implements Recorder.
func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if !e.Operation.Valid() {
		return fmt.Errorf("audit: unknown operation %q", e.Operation)
	}
	m.entries = append(m.entries, e)
	return nil
}

// FailWith makes every following Record call return err. Passing nil
// restores normal behaviour.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Entries returns a copy of the recorded entries in order.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Reset drops all recorded entries.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}
