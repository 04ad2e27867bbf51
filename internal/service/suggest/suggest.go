package suggest

import (
	"strings"

	"github.com/vetlink/companion/backend/internal/analysis/classify"
	"github.com/vetlink/companion/backend/internal/model/chat"
	"github.com/vetlink/companion/backend/internal/model/profile"
	"github.com/vetlink/companion/backend/internal/model/role"
)

// DefaultLimit caps the number of suggestions shown at once.
const DefaultLimit = 5

var byCategory = map[chat.Category][]string{
	chat.CategoryResume: {
		"Tailor my résumé to a job posting",
		"Translate my military skills",
		"Practice interview questions",
		"Find veteran-friendly employers",
	},
	chat.CategoryHousing: {
		"Find emergency shelter near me",
		"Learn about HUD-VASH vouchers",
		"Get help with rent or utilities",
		"Explore VA home loans",
	},
	chat.CategoryAppointment: {
		"Schedule a VA health appointment",
		"Reschedule an appointment",
		"Find a Vet Center near me",
	},
	chat.CategoryBenefits: {
		"Check my disability claim status",
		"Learn about the GI Bill",
		"Find a Veterans Service Officer",
		"Explain TRICARE coverage",
	},
	chat.CategoryGeneral: {
		"What can you help me with?",
		"Find local veteran resources",
	},
}

var supportPrompts = []string{
	"Talk to a real person",
	"Find a peer support group",
	"Show me counseling resources",
}

var crisisPrompts = []string{
	"Call the Veterans Crisis Line (dial 988, press 1)",
	"Text 838255 for confidential support",
	"Talk to a real person",
}

var needPrompts = map[string]string{
	"employment":    "Help me build my résumé",
	"jobs":          "Help me build my résumé",
	"housing":       "Find housing assistance",
	"healthcare":    "Schedule a VA health appointment",
	"benefits":      "Check my VA benefits",
	"education":     "Learn about the GI Bill",
	"mental health": "Show me counseling resources",
	"caregiving":    "What caregiver programs are available?",
	"finances":      "Find financial counseling",
}

var globalDefaults = []string{
	"What can you help me with?",
	"Check my VA benefits",
	"Talk to a real person",
}

// Engine produces follow-up suggestions. It is stateless and safe for
// concurrent use.
type Engine struct {
	limit int
}

// New returns an Engine capped at limit suggestions; zero or negative selects
// DefaultLimit.
func New(limit int) *Engine {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Engine{limit: limit}
}

// Limit returns the configured cap.
func (e *Engine) Limit() int {
	return e.limit
}

// Suggest returns follow-ups for the conversation so far. With no user turn
// yet, the role's defaults are returned.
func (e *Engine) Suggest(history []chat.Message, r role.Role) []string {
	var lastUser, lastAssistant *chat.Message
	for i := len(history) - 1; i >= 0; i-- {
		m := &history[i]
		if m.FromUser() && lastUser == nil {
			lastUser = m
		}
		if !m.FromUser() && lastAssistant == nil {
			lastAssistant = m
		}
		if lastUser != nil && lastAssistant != nil {
			break
		}
	}

	sent := sentTexts(history)
	if lastUser == nil {
		return e.collect(sent, roleDefaults(r), globalDefaults)
	}

	category := lastUser.Category
	if category == "" {
		category = classify.Classify(lastUser.Text)
	}

	var first []string
	switch {
	case lastUser.Crisis || (lastAssistant != nil && lastAssistant.Crisis):
		first = crisisPrompts
	case lastUser.Sentiment == chat.SentimentNegative ||
		(lastAssistant != nil && lastAssistant.Sentiment == chat.SentimentNegative):
		first = supportPrompts
	}

	return e.collect(sent, first, byCategory[category], roleDefaults(r), globalDefaults)
}

// Fallback is used when the user's input is too short to act on. It draws on
// the profile when available, then the role, and always returns at least one
// suggestion.
func (e *Engine) Fallback(p *profile.Profile, r role.Role) []string {
	var fromProfile []string
	if p != nil {
		for _, need := range p.NeedsAssistance {
			if s, ok := needPrompts[strings.ToLower(strings.TrimSpace(need))]; ok {
				fromProfile = append(fromProfile, s)
			}
		}
		if branch := strings.TrimSpace(p.Branch); branch != "" {
			fromProfile = append(fromProfile, "Connect with other "+branch+" veterans")
		}
	}

	out := e.collect(nil, fromProfile, roleDefaults(r), globalDefaults)
	if len(out) == 0 {
		return []string{globalDefaults[0]}
	}
	return out
}

func roleDefaults(r role.Role) []string {
	return r.DefaultSuggestions
}

func (e *Engine) collect(skip map[string]struct{}, groups ...[]string) []string {
	out := make([]string, 0, e.limit)
	seen := make(map[string]struct{}, e.limit)
	for _, group := range groups {
		for _, s := range group {
			key := normalize(s)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			if _, ok := skip[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
			if len(out) == e.limit {
				return out
			}
		}
	}
	return out
}

func sentTexts(history []chat.Message) map[string]struct{} {
	sent := make(map[string]struct{})
	for _, m := range history {
		if m.FromUser() {
			sent[normalize(m.Text)] = struct{}{}
		}
	}
	return sent
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
