package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vetlink/companion/backend/internal/model/chat"
	"github.com/vetlink/companion/backend/internal/model/role"
)

var (
	ErrRoleRequired    = errors.New("role id is required")
	ErrRoleNotFound    = errors.New("role not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Service is the registry of open conversations. Conversations share no
// state beyond the collaborators in Deps.
type Service struct {
	roles  role.Store
	deps   Deps
	logger *zap.Logger

	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewService bootstraps the in-memory conversation registry.
func NewService(roles role.Store, deps Deps) *Service {
	deps = deps.withDefaults()
	return &Service{
		roles:         roles,
		deps:          deps,
		logger:        deps.Logger.Named("chat"),
		conversations: make(map[string]*Conversation),
	}
}

func (s *Service) resolveRole(roleID string) (role.Role, error) {
	if strings.TrimSpace(roleID) == "" {
		r, ok := s.roles.Default()
		if !ok {
			return role.Role{}, ErrRoleRequired
		}
		return r, nil
	}
	r, ok := s.roles.FindByID(roleID)
	if !ok {
		return role.Role{}, ErrRoleNotFound
	}
	return r, nil
}

// Roles lists the available assistant roles.
func (s *Service) Roles() []role.Role {
	return s.roles.List()
}

// CreateSession opens a conversation for roleID. A blank roleID selects the
// store's default role. userID is optional.
func (s *Service) CreateSession(ctx context.Context, roleID, userID string) (*Conversation, error) {
	r, err := s.resolveRole(roleID)
	if err != nil {
		return nil, err
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		RoleID:    r.ID,
		UserID:    strings.TrimSpace(userID),
		CreatedAt: s.deps.Now().UTC(),
	}

	conv := NewConversation(session, r, s.deps)
	conv.Open(ctx)

	s.mu.Lock()
	s.conversations[session.ID] = conv
	s.mu.Unlock()

	s.logger.Info("session opened", zap.String("session_id", session.ID), zap.String("role", r.ID))
	return conv, nil
}

// GetSession retrieves an open conversation.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return conv, nil
}

// CloseSession closes and forgets a conversation.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	conv, ok := s.conversations[sessionID]
	delete(s.conversations, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	conv.Close()
	s.logger.Info("session closed", zap.String("session_id", sessionID))
	return nil
}

// CloseAll closes every open conversation, used on shutdown.
func (s *Service) CloseAll() {
	s.mu.Lock()
	convs := s.conversations
	s.conversations = make(map[string]*Conversation)
	s.mu.Unlock()

	for _, conv := range convs {
		conv.Close()
	}
}

// Len returns the number of open conversations.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
