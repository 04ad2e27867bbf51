package escalation

import (
	"testing"

	"github.com/vetlink/companion/backend/internal/model/chat"
)

func user(text string, s chat.Sentiment) chat.Message {
	return chat.Message{Sender: chat.SenderUser, Text: text, Sentiment: s}
}

func assistant(text string, flagged bool) chat.Message {
	m := chat.Message{Sender: chat.SenderAssistant, Text: text, Flagged: flagged, Sentiment: chat.SentimentNeutral}
	if flagged {
		m.Sentiment = chat.SentimentNegative
	}
	return m
}

func TestCheckEmptyHistory(t *testing.T) {
	if got := New(0).Check(nil); got.NeedsEscalation {
		t.Fatalf("expected no escalation, got %+v", got)
	}
}

func TestCheckCrisisInWindow(t *testing.T) {
	crisis := user("I don't want to be here anymore", chat.SentimentNegative)
	crisis.Crisis = true
	history := []chat.Message{crisis, assistant("Please call 988", true)}

	got := New(0).Check(history)
	if !got.NeedsEscalation || got.Reason != ReasonCrisis {
		t.Fatalf("expected crisis escalation, got %+v", got)
	}
}

func TestCheckHumanRequest(t *testing.T) {
	cases := []string{
		"Can I talk to a real person?",
		"I want to speak with someone",
		"connect me to a counselor please",
		"Is there a live person available",
	}
	for _, text := range cases {
		got := New(0).Check([]chat.Message{user(text, chat.SentimentNeutral)})
		if !got.NeedsEscalation || got.Reason != ReasonHumanRequest {
			t.Fatalf("%q: expected human request escalation, got %+v", text, got)
		}
	}
}

func TestCheckHumanRequestOnlyLatestUserMessage(t *testing.T) {
	history := []chat.Message{
		user("talk to a human", chat.SentimentNeutral),
		assistant("Sure, here is how.", false),
		user("Actually never mind, what about housing", chat.SentimentNeutral),
	}
	if got := New(0).Check(history); got.NeedsEscalation {
		t.Fatalf("expected no escalation, got %+v", got)
	}
}

func TestCheckNegativeTrend(t *testing.T) {
	history := []chat.Message{
		user("This is hopeless", chat.SentimentNegative),
		assistant("I understand.", false),
		user("I'm so frustrated", chat.SentimentNegative),
	}
	got := New(0).Check(history)
	if !got.NeedsEscalation || got.Reason != ReasonNegativeTrend {
		t.Fatalf("expected negative trend escalation, got %+v", got)
	}
}

func TestCheckFlaggedReplies(t *testing.T) {
	history := []chat.Message{
		user("question", chat.SentimentNeutral),
		assistant("I can't do that", true),
		user("another", chat.SentimentNeutral),
		assistant("Unfortunately not", true),
	}
	got := New(0).Check(history)
	if !got.NeedsEscalation || got.Reason != ReasonFlaggedReply {
		t.Fatalf("expected flagged reply escalation, got %+v", got)
	}
}

func TestCheckIgnoresNeutralFlaggedReplies(t *testing.T) {
	neutral := chat.Message{
		Sender:    chat.SenderAssistant,
		Text:      "Your next step is to call the regional office on Monday.",
		Flagged:   true,
		Sentiment: chat.SentimentNeutral,
	}
	history := []chat.Message{
		user("what do I do", chat.SentimentNeutral), neutral,
		user("and then", chat.SentimentNeutral), neutral,
	}
	if got := New(0).Check(history); got.NeedsEscalation {
		t.Fatalf("neutral replies must not escalate, got %+v", got)
	}

	replaced := neutral
	replaced.Replaced = true
	history[3] = replaced
	history[1] = replaced
	if got := New(0).Check(history); got.Reason != ReasonFlaggedReply {
		t.Fatalf("replaced replies should escalate, got %+v", got)
	}
}

func TestTriggersListsEveryMatchingRule(t *testing.T) {
	crisis := user("I want to end my life, let me talk to a real person", chat.SentimentNegative)
	crisis.Crisis = true
	history := []chat.Message{
		user("this is awful", chat.SentimentNegative),
		assistant("I'm sorry", false),
		crisis,
	}
	got := New(0).Triggers(history)
	want := []string{ReasonCrisis, ReasonHumanRequest, ReasonNegativeTrend}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestCheckOnlyInspectsWindow(t *testing.T) {
	history := []chat.Message{
		user("awful", chat.SentimentNegative),
		user("terrible", chat.SentimentNegative),
	}
	for i := 0; i < 6; i++ {
		history = append(history, user("ok", chat.SentimentNeutral))
	}
	if got := New(6).Check(history); got.NeedsEscalation {
		t.Fatalf("messages outside the window must not count, got %+v", got)
	}
	if got := New(8).Check(history); !got.NeedsEscalation {
		t.Fatal("wider window should see the negative messages")
	}
}

func TestCheckIsPure(t *testing.T) {
	history := []chat.Message{user("talk to a human", chat.SentimentNeutral)}
	p := New(0)
	first := p.Check(history)
	second := p.Check(history)
	if first != second {
		t.Fatalf("repeated checks differ: %+v vs %+v", first, second)
	}
}
