package escalation

import (
	"regexp"

	"github.com/vetlink/companion/backend/internal/model/chat"
)

// DefaultWindow is the number of trailing messages the policy inspects.
const DefaultWindow = 6

// Reasons reported by Check.
const (
	ReasonCrisis        = "crisis language detected"
	ReasonHumanRequest  = "user asked for a person"
	ReasonNegativeTrend = "repeated negative messages"
	ReasonFlaggedReply  = "repeated flagged replies"
)

// Check is the outcome of evaluating a conversation.
type Check struct {
	NeedsEscalation bool   `json:"needsEscalation"`
	Reason          string `json:"reason,omitempty"`
}

var humanRequest = regexp.MustCompile(`(?i)\b(?:talk|speak|chat|connect(?: me)?) (?:to|with) (?:a |an |someone|somebody)?\s*(?:real |live |actual )?(?:person|human|someone|somebody|counselor|representative|agent|advisor|staff)\b|\b(?:real|live) (?:person|human)\b|\bhuman (?:help|agent|support)\b`)

// Policy decides whether a conversation should be handed to a human. It is
// pure and safe for concurrent use.
type Policy struct {
	window int
}

// New returns a Policy over the last window messages; zero or negative
// selects DefaultWindow.
func New(window int) *Policy {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Policy{window: window}
}

// Window returns the number of messages inspected.
func (p *Policy) Window() int {
	return p.window
}

// Check evaluates the trailing window of history. Rules apply in order and the
// first match wins.
func (p *Policy) Check(history []chat.Message) Check {
	reasons := p.Triggers(history)
	if len(reasons) == 0 {
		return Check{}
	}
	return Check{NeedsEscalation: true, Reason: reasons[0]}
}

// Triggers returns every rule that matches the trailing window, in rule
// order. Callers that suppress a reason once offered use it to fall through
// to the next one.
func (p *Policy) Triggers(history []chat.Message) []string {
	recent := history
	if len(recent) > p.window {
		recent = recent[len(recent)-p.window:]
	}

	var reasons []string
	for _, m := range recent {
		if m.Crisis {
			reasons = append(reasons, ReasonCrisis)
			break
		}
	}

	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].FromUser() {
			if RequestsHuman(recent[i].Text) {
				reasons = append(reasons, ReasonHumanRequest)
			}
			break
		}
	}

	negative, troubled := 0, 0
	for _, m := range recent {
		if m.FromUser() && m.Sentiment == chat.SentimentNegative {
			negative++
		}
		if !m.FromUser() && troubledReply(m) {
			troubled++
		}
	}
	if negative >= 2 {
		reasons = append(reasons, ReasonNegativeTrend)
	}
	if troubled >= 2 {
		reasons = append(reasons, ReasonFlaggedReply)
	}
	return reasons
}

// troubledReply counts flagged replies that scored negative or were replaced.
// Neutral replies are flagged for review but do not warrant a handoff.
func troubledReply(m chat.Message) bool {
	return m.Flagged && (m.Replaced || m.Sentiment == chat.SentimentNegative)
}

// RequestsHuman reports whether text asks to be connected to a person.
func RequestsHuman(text string) bool {
	return humanRequest.MatchString(text)
}
