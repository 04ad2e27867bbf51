package store

import (
	"context"
	"sort"
	"sync"

	auditmodel "github.com/vetlink/companion/backend/internal/model/audit"
	"github.com/vetlink/companion/backend/internal/model/chat"
)

// MemoryStore is a process-local Repository for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	flags    []auditmodel.FlaggedEntry
	alerts   []auditmodel.CrisisAlert
	messages map[string][]chat.Message
	events   []Event
	seen     map[string]struct{}
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]chat.Message),
		seen:     make(map[string]struct{}),
	}
}

// firstSeen records key and reports whether it was new. Callers hold mu.
func (s *MemoryStore) firstSeen(key string) bool {
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

func (s *MemoryStore) AppendFlag(_ context.Context, entry auditmodel.FlaggedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstSeen("flag:" + entry.ID) {
		s.flags = append(s.flags, entry)
	}
	return nil
}

func (s *MemoryStore) AppendCrisisAlert(_ context.Context, alert auditmodel.CrisisAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstSeen("crisis:" + alert.ID) {
		s.alerts = append(s.alerts, alert)
	}
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstSeen("msg:" + msg.ID) {
		msg.Suggestions = append([]string(nil), msg.Suggestions...)
		s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	}
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstSeen("event:" + event.ID) {
		s.events = append(s.events, event)
	}
	return nil
}

// ListFlags returns the newest flags first.
func (s *MemoryStore) ListFlags(_ context.Context, limit int) ([]auditmodel.FlaggedEntry, error) {
	s.mu.RLock()
	out := append([]auditmodel.FlaggedEntry(nil), s.flags...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListCrisisAlerts returns the newest alerts first.
func (s *MemoryStore) ListCrisisAlerts(_ context.Context, limit int) ([]auditmodel.CrisisAlert, error) {
	s.mu.RLock()
	out := append([]auditmodel.CrisisAlert(nil), s.alerts...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListMessages returns the stored transcript in creation order.
func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	out := make([]chat.Message, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Events returns the recorded analytics events.
func (s *MemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
