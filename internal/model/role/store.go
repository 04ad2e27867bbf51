package role

import "strings"

// Store exposes role lookup for handlers and the conversation service.
type Store interface {
	List() []Role
	FindByID(id string) (Role, bool)
	Default() (Role, bool)
}

// MemoryStore implements Store with an in-memory slice. Roles with a blank or
// repeated ID are skipped.
type MemoryStore struct {
	items []Role
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied roles.
func NewMemoryStore(items []Role) *MemoryStore {
	seen := make(map[string]bool, len(items))
	kept := make([]Role, 0, len(items))
	for _, item := range items {
		key := normalizeID(item.ID)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, item)
	}
	return &MemoryStore{items: kept}
}

// List returns every configured role.
func (s *MemoryStore) List() []Role {
	return append([]Role(nil), s.items...)
}

// FindByID looks up a role by identifier, ignoring case and surrounding
// whitespace.
func (s *MemoryStore) FindByID(id string) (Role, bool) {
	key := normalizeID(id)
	if key == "" {
		return Role{}, false
	}
	for _, item := range s.items {
		if normalizeID(item.ID) == key {
			return item, true
		}
	}
	return Role{}, false
}

// Default returns the role used when a caller does not pick one: the veteran
// navigator when configured, otherwise the first role.
func (s *MemoryStore) Default() (Role, bool) {
	if r, ok := s.FindByID(Veteran); ok {
		return r, true
	}
	if len(s.items) == 0 {
		return Role{}, false
	}
	return s.items[0], true
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
