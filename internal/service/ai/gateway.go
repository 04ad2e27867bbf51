package ai

import (
	"context"
	"errors"

	"github.com/vetlink/companion/backend/internal/model/chat"
)

var (
	// ErrUnavailable is returned when no generation backend is configured.
	ErrUnavailable = errors.New("generation gateway not configured")
	// ErrEmptyReply is returned when the backend answers with no text.
	ErrEmptyReply = errors.New("generation gateway returned an empty reply")
)

// Gateway generates one assistant reply. history holds the prior turns, oldest
// first, not including userText.
type Gateway interface {
	Generate(ctx context.Context, systemPrompt string, history []chat.Message, userText string) (string, error)
}

// Unavailable is the Gateway used when no provider is configured. Every call
// fails, so conversations fall back to the apology reply.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, string, []chat.Message, string) (string, error) {
	return "", ErrUnavailable
}
