package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vetlink/companion/backend/internal/model/chat"
)

// SentimentSnapshot records the scorer output that caused a flag.
type SentimentSnapshot struct {
	Sentiment  chat.Sentiment `json:"sentiment"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
}

// FlaggedEntry is an append-only record of an assistant reply that needs
// human review.
type FlaggedEntry struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	Sentiment     SentimentSnapshot `json:"sentiment"`
	CreatedAt     time.Time         `json:"createdAt"`
	UserID        string            `json:"userId,omitempty"`
	AssistantType string            `json:"assistantType"`
}

// CrisisAlert is a high-priority record raised when crisis language is seen.
// Resolution happens out of band.
type CrisisAlert struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Resolved  bool      `json:"resolved"`
}

var namespace = uuid.MustParse("6f1d3c2e-8a41-4b8e-9d0a-5c7e2f3b9a10")

// RecordID derives a stable identifier from content and timestamp so that
// retried writes of the same record collapse into one row.
func RecordID(kind, text string, at time.Time) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('|')
	b.WriteString(at.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(text)
	return uuid.NewSHA1(namespace, []byte(b.String())).String()
}

// NewFlaggedEntry builds a FlaggedEntry with a deterministic ID.
func NewFlaggedEntry(text string, snap SentimentSnapshot, at time.Time, userID, assistantType string) FlaggedEntry {
	at = at.UTC()
	return FlaggedEntry{
		ID:            RecordID("flag", text, at),
		Text:          text,
		Sentiment:     snap,
		CreatedAt:     at,
		UserID:        userID,
		AssistantType: assistantType,
	}
}

// NewCrisisAlert builds an unresolved CrisisAlert with a deterministic ID.
func NewCrisisAlert(text string, at time.Time, userID string) CrisisAlert {
	at = at.UTC()
	return CrisisAlert{
		ID:        RecordID("crisis", text, at),
		Text:      text,
		UserID:    userID,
		CreatedAt: at,
	}
}
