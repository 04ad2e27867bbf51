package chat

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Category is the intent bucket assigned by the message classifier.
type Category string

const (
	CategoryResume      Category = "resume"
	CategoryHousing     Category = "housing"
	CategoryAppointment Category = "appointment"
	CategoryBenefits    Category = "benefits"
	CategoryGeneral     Category = "general"
)

// Sentiment is the valence label produced by the sentiment scorer.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Message is one immutable turn of a conversation. All analysis fields are
// populated when the message is built and never touched afterwards.
type Message struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"sessionId"`
	Text             string    `json:"text"`
	Sender           Sender    `json:"sender"`
	CreatedAt        time.Time `json:"createdAt"`
	Category         Category  `json:"category,omitempty"`
	Sentiment        Sentiment `json:"sentiment,omitempty"`
	SentimentScore   float64   `json:"sentimentScore"`
	Confidence       float64   `json:"confidence"`
	Flagged          bool      `json:"flagged"`
	Crisis           bool      `json:"crisis,omitempty"`
	Replaced         bool      `json:"replaced,omitempty"`
	NeedsEscalation  bool      `json:"needsEscalation"`
	EscalationReason string    `json:"escalationReason,omitempty"`
	Suggestions      []string  `json:"suggestions,omitempty"`
}

// FromUser reports whether the message was typed by the user.
func (m Message) FromUser() bool {
	return m.Sender == SenderUser
}
