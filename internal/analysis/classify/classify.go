package classify

import (
	"strings"

	"github.com/vetlink/companion/backend/internal/model/chat"
)

// Rule maps a keyword set to a category. Keywords are matched as
// case-insensitive substrings.
type Rule struct {
	Label    chat.Category
	Keywords []string
}

// Matches reports whether any keyword occurs in the already-lowercased text.
func (r Rule) Matches(lowered string) bool {
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// rules are evaluated in order; the first match wins.
var rules = []Rule{
	{
		Label: chat.CategoryResume,
		Keywords: []string{
			"resume", "résumé", "job", "employment", "employer", "career", "hiring",
			"interview", "cover letter", "linkedin", "civilian skills",
		},
	},
	{
		Label: chat.CategoryHousing,
		Keywords: []string{
			"housing", "rental", "my rent", "pay rent", "apartment", "homeless", "shelter", "eviction", "evicted",
			"mortgage", "landlord", "place to live", "hud-vash",
		},
	},
	{
		Label: chat.CategoryAppointment,
		Keywords: []string{
			"appointment", "schedule", "reschedule", "booking", "book a", "calendar",
			"available time", "meeting", "check-in",
		},
	},
	{
		Label: chat.CategoryBenefits,
		Keywords: []string{
			"benefit", "disability", "compensation", "gi bill", "pension", "claim",
			"tricare", "veterans affairs", "va health", "va claim", "eligib",
		},
	},
}

// Rules returns a copy of the ordered rule list.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classify returns the first category whose rule matches text, or general.
func Classify(text string) chat.Category {
	lowered := strings.ToLower(text)
	for _, r := range rules {
		if r.Matches(lowered) {
			return r.Label
		}
	}
	return chat.CategoryGeneral
}
