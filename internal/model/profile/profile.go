package profile

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Profile is the subset of the user's profile the conversation engine reads.
type Profile struct {
	UserID              string     `json:"userId"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Branch              string     `json:"branch"`
	ServiceYears        int        `json:"serviceYears"`
	NeedsAssistance     []string   `json:"needsAssistance,omitempty"`
	NeedsUrgentOutreach bool       `json:"needsUrgentOutreach"`
	UrgentOutreachAt    *time.Time `json:"urgentOutreachAt,omitempty"`
}

// DisplayName returns the best available name for greetings and prompts.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Store reads profiles and records urgent outreach requests. GetProfile
// returns (nil, nil) for unknown users.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	MarkUrgentOutreach(ctx context.Context, userID string, at time.Time) error
}

// MemoryStore keeps profiles in process; used for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items ...Profile) *MemoryStore {
	s := &MemoryStore{items: make(map[string]Profile, len(items))}
	for _, p := range items {
		s.items[p.UserID] = p
	}
	return s
}

// GetProfile returns a copy of the stored profile.
func (s *MemoryStore) GetProfile(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.items[userID]
	if !ok {
		return nil, nil
	}
	p.NeedsAssistance = append([]string(nil), p.NeedsAssistance...)
	return &p, nil
}

// MarkUrgentOutreach flags the user for human follow-up. Unknown users get a
// stub record so the request is not lost.
func (s *MemoryStore) MarkUrgentOutreach(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.items[userID]
	if !ok {
		p = Profile{UserID: userID}
	}
	ts := at.UTC()
	p.NeedsUrgentOutreach = true
	p.UrgentOutreachAt = &ts
	s.items[userID] = p
	return nil
}
