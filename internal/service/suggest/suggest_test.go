package suggest

import (
	"testing"

	"github.com/vetlink/companion/backend/internal/model/chat"
	"github.com/vetlink/companion/backend/internal/model/profile"
	"github.com/vetlink/companion/backend/internal/model/role"
)

func veteranRole() role.Role {
	for _, r := range role.Seed() {
		if r.ID == role.Veteran {
			return r
		}
	}
	panic("veteran role missing")
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestSuggestEmptyHistoryUsesRoleDefaults(t *testing.T) {
	r := veteranRole()
	got := New(0).Suggest(nil, r)
	if len(got) == 0 || got[0] != r.DefaultSuggestions[0] {
		t.Fatalf("expected role defaults first, got %v", got)
	}
}

func TestSuggestIsCappedAndDeduplicated(t *testing.T) {
	history := []chat.Message{
		{Sender: chat.SenderUser, Text: "I need help with my VA claim", Category: chat.CategoryBenefits, Sentiment: chat.SentimentNegative},
	}
	got := New(3).Suggest(history, veteranRole())
	if len(got) != 3 {
		t.Fatalf("expected 3 suggestions, got %d: %v", len(got), got)
	}
	seen := map[string]bool{}
	for _, s := range got {
		if seen[s] {
			t.Fatalf("duplicate suggestion %q in %v", s, got)
		}
		seen[s] = true
	}
}

func TestSuggestCategorySpecific(t *testing.T) {
	history := []chat.Message{
		{Sender: chat.SenderUser, Text: "Where can I find an apartment?"},
		{Sender: chat.SenderAssistant, Text: "Here are some options.", Sentiment: chat.SentimentPositive},
	}
	got := New(0).Suggest(history, veteranRole())
	if got[0] != byCategory[chat.CategoryHousing][0] {
		t.Fatalf("expected housing follow-up first, got %v", got)
	}
}

func TestSuggestCrisisPromptsFirst(t *testing.T) {
	history := []chat.Message{
		{Sender: chat.SenderUser, Text: "I want to end my life", Crisis: true},
		{Sender: chat.SenderAssistant, Text: "Please reach out", Crisis: true, Flagged: true},
	}
	got := New(0).Suggest(history, veteranRole())
	if got[0] != crisisPrompts[0] {
		t.Fatalf("expected crisis line first, got %v", got)
	}
}

func TestSuggestNegativeSentimentLeadsWithSupport(t *testing.T) {
	history := []chat.Message{
		{Sender: chat.SenderUser, Text: "I'm so frustrated", Sentiment: chat.SentimentNegative},
	}
	got := New(0).Suggest(history, veteranRole())
	if got[0] != supportPrompts[0] {
		t.Fatalf("expected support prompt first, got %v", got)
	}
}

func TestSuggestSkipsAlreadySent(t *testing.T) {
	first := byCategory[chat.CategoryResume][0]
	history := []chat.Message{
		{Sender: chat.SenderUser, Text: first, Category: chat.CategoryResume},
	}
	got := New(0).Suggest(history, veteranRole())
	if contains(got, first) {
		t.Fatalf("suggestion %q already sent but offered again: %v", first, got)
	}
}

func TestFallbackUsesProfile(t *testing.T) {
	p := &profile.Profile{Branch: "Navy", NeedsAssistance: []string{"Housing", "unknown-need"}}
	got := New(0).Fallback(p, veteranRole())
	if got[0] != "Find housing assistance" {
		t.Fatalf("expected profile need first, got %v", got)
	}
	if !contains(got, "Connect with other Navy veterans") {
		t.Fatalf("expected branch suggestion, got %v", got)
	}
}

func TestFallbackNeverEmpty(t *testing.T) {
	got := New(1).Fallback(nil, role.Role{})
	if len(got) != 1 || got[0] != globalDefaults[0] {
		t.Fatalf("expected global default, got %v", got)
	}

	got = New(0).Fallback(&profile.Profile{}, veteranRole())
	if len(got) == 0 {
		t.Fatal("fallback returned no suggestions")
	}
}
