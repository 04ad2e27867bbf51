package audit

import (
	"sync"

	auditmodel "github.com/vetlink/companion/backend/internal/model/audit"
)

// DefaultBufferSize bounds the in-process flag buffer.
const DefaultBufferSize = 200

// Buffer keeps the most recent flagged replies in memory for the admin review
// surface. It is injected rather than global so tests and processes own their
// own instance.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	entries  []auditmodel.FlaggedEntry
	seen     map[string]struct{}
}

// NewBuffer returns an initialised buffer.
func NewBuffer(capacity int) *Buffer {
	b := &Buffer{}
	b.Init(capacity)
	return b
}

// Init (re)initialises the buffer with the given capacity, discarding any
// existing entries.
func (b *Buffer) Init(capacity int) {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	b.mu.Lock()
	b.capacity = capacity
	b.entries = make([]auditmodel.FlaggedEntry, 0, capacity)
	b.seen = make(map[string]struct{}, capacity)
	b.mu.Unlock()
}

// Reset drops every entry but keeps the capacity.
func (b *Buffer) Reset() {
	b.mu.RLock()
	capacity := b.capacity
	b.mu.RUnlock()
	b.Init(capacity)
}

// Append records an entry. Entries already present (same ID) are ignored and
// the oldest entry is evicted once the buffer is full.
func (b *Buffer) Append(entry auditmodel.FlaggedEntry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seen == nil {
		b.capacity = DefaultBufferSize
		b.seen = make(map[string]struct{})
	}
	if _, dup := b.seen[entry.ID]; dup {
		return false
	}
	if len(b.entries) >= b.capacity {
		evicted := b.entries[0]
		delete(b.seen, evicted.ID)
		b.entries = append(b.entries[:0], b.entries[1:]...)
	}
	b.entries = append(b.entries, entry)
	b.seen[entry.ID] = struct{}{}
	return true
}

// Entries returns a copy of the buffered entries, oldest first.
func (b *Buffer) Entries() []auditmodel.FlaggedEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]auditmodel.FlaggedEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
