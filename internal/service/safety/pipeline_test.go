package safety

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetlink/companion/backend/internal/analysis/crisis"
	auditmodel "github.com/vetlink/companion/backend/internal/model/audit"
	"github.com/vetlink/companion/backend/internal/model/chat"
	"github.com/vetlink/companion/backend/internal/model/profile"
	auditservice "github.com/vetlink/companion/backend/internal/service/audit"
	"github.com/vetlink/companion/backend/internal/store"
)

const (
	positiveReply       = "Thank you for reaching out! I'm glad to help you explore VA benefits and programs."
	neutralReply        = "Here is the office address."
	weakNegativeReply   = "Unfortunately that office is closed."
	strongNegativeReply = "Sorry, I can't do that. Unfortunately I am unable to help, it is against our policy and not allowed."
	crisisReply         = "Some veterans have suicidal thoughts after service."
)

// inlineSubmitter runs jobs synchronously so tests can assert on the sink.
type inlineSubmitter struct {
	mu   sync.Mutex
	keys []string
}

func (s *inlineSubmitter) Submit(job auditservice.Job) bool {
	s.mu.Lock()
	s.keys = append(s.keys, job.Key)
	s.mu.Unlock()
	_ = job.Run(context.Background())
	return true
}

type fixture struct {
	pipeline *Pipeline
	sink     *store.MemoryStore
	profiles *profile.MemoryStore
	jobs     *inlineSubmitter
}

var fixedNow = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func newFixture() fixture {
	f := fixture{
		sink:     store.NewMemory(),
		profiles: profile.NewMemoryStore(profile.Profile{UserID: "vet-1", FirstName: "Dana"}),
		jobs:     &inlineSubmitter{},
	}
	f.pipeline = New(Config{
		Buffer:     auditservice.NewBuffer(10),
		Sink:       f.sink,
		Outreach:   f.profiles,
		Dispatcher: f.jobs,
		Now:        func() time.Time { return fixedNow },
	})
	return f
}

func TestReviewPositiveReplyPassesThrough(t *testing.T) {
	f := newFixture()
	out := f.pipeline.Review(context.Background(), Input{Reply: positiveReply, AssistantType: "veteran-navigator"})

	assert.Equal(t, positiveReply, out.Text)
	assert.False(t, out.Flagged)
	assert.False(t, out.Replaced)
	assert.Equal(t, chat.SentimentPositive, out.Sentiment.Sentiment)
	assert.Zero(t, f.pipeline.Buffer().Len())
	assert.Empty(t, f.jobs.keys)
}

func TestReviewNeutralReplyIsFlaggedNotReplaced(t *testing.T) {
	f := newFixture()
	out := f.pipeline.Review(context.Background(), Input{Reply: neutralReply, AssistantType: "family-support", UserID: "vet-1"})

	assert.Equal(t, neutralReply, out.Text)
	assert.True(t, out.Flagged)
	assert.False(t, out.Replaced)

	entries := f.pipeline.Buffer().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, neutralReply, entries[0].Text)
	assert.Equal(t, "family-support", entries[0].AssistantType)
	assert.Equal(t, "vet-1", entries[0].UserID)

	flags, err := f.sink.ListFlags(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, entries[0].ID, flags[0].ID)
}

func TestReviewWeakNegativeKeepsText(t *testing.T) {
	f := newFixture()
	out := f.pipeline.Review(context.Background(), Input{Reply: weakNegativeReply})

	assert.Equal(t, chat.SentimentNegative, out.Sentiment.Sentiment)
	assert.LessOrEqual(t, out.Sentiment.Confidence, DefaultReplaceConfidence)
	assert.Equal(t, weakNegativeReply, out.Text)
	assert.True(t, out.Flagged)
}

func TestReviewStrongNegativeIsReplaced(t *testing.T) {
	f := newFixture()
	out := f.pipeline.Review(context.Background(), Input{Reply: strongNegativeReply})

	assert.Greater(t, out.Sentiment.Confidence, DefaultReplaceConfidence)
	assert.Equal(t, EmpatheticFallback, out.Text)
	assert.True(t, out.Flagged)
	assert.True(t, out.Replaced)
	assert.Equal(t, 1, f.pipeline.Buffer().Len(), "replaced replies are still audited")
}

func TestReviewCrisisTakesPrecedence(t *testing.T) {
	f := newFixture()
	out := f.pipeline.Review(context.Background(), Input{Reply: crisisReply, UserID: "vet-1"})

	assert.Equal(t, CrisisMessage, out.Text)
	assert.True(t, out.Flagged)
	assert.True(t, out.Crisis)
	assert.Equal(t, crisis.SelfHarm, out.CrisisFamily)
	assert.Contains(t, out.Text, "988")
	assert.Zero(t, f.pipeline.Buffer().Len(), "crisis path skips the flag buffer")

	alerts, err := f.sink.ListCrisisAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, auditmodel.NewCrisisAlert(crisisReply, fixedNow, "vet-1").ID, alerts[0].ID)
	assert.False(t, alerts[0].Resolved)

	p, err := f.profiles.GetProfile(context.Background(), "vet-1")
	require.NoError(t, err)
	assert.True(t, p.NeedsUrgentOutreach)
	require.NotNil(t, p.UrgentOutreachAt)
	assert.True(t, fixedNow.Equal(*p.UrgentOutreachAt))
}

func TestReviewCrisisWithoutUserSkipsOutreach(t *testing.T) {
	f := newFixture()
	f.pipeline.Review(context.Background(), Input{Reply: crisisReply})

	require.Len(t, f.jobs.keys, 1)
	assert.Contains(t, f.jobs.keys[0], "crisis:")
}

func TestScreenUserInput(t *testing.T) {
	f := newFixture()

	_, hit := f.pipeline.ScreenUserInput(context.Background(), "Can you help with my resume?", "vet-1")
	assert.False(t, hit)

	out, hit := f.pipeline.ScreenUserInput(context.Background(), "I want to end my life", "vet-1")
	require.True(t, hit)
	assert.Equal(t, CrisisMessage, out.Text)
	assert.True(t, out.Crisis)

	alerts, _ := f.sink.ListCrisisAlerts(context.Background(), 10)
	require.Len(t, alerts, 1)
	assert.Equal(t, "I want to end my life", alerts[0].Text)
}

type failingSink struct{}

func (failingSink) AppendFlag(context.Context, auditmodel.FlaggedEntry) error {
	return errors.New("database unavailable")
}

func (failingSink) AppendCrisisAlert(context.Context, auditmodel.CrisisAlert) error {
	return errors.New("database unavailable")
}

func TestPersistenceFailureNeverChangesOutcome(t *testing.T) {
	d := auditservice.NewDispatcher(auditservice.Config{Workers: 1, MaxAttempts: 2, RetryBackoff: time.Millisecond}, nil)
	p := New(Config{Sink: failingSink{}, Dispatcher: d})

	out := p.Review(context.Background(), Input{Reply: neutralReply})
	assert.Equal(t, neutralReply, out.Text)
	assert.True(t, out.Flagged)
	assert.Equal(t, 1, p.Buffer().Len())

	require.NoError(t, d.Close(context.Background()))
	assert.EqualValues(t, 1, d.Stats().Failed)
}

func TestReviewIsIdempotentForSameReplyAndTime(t *testing.T) {
	f := newFixture()
	f.pipeline.Review(context.Background(), Input{Reply: neutralReply})
	f.pipeline.Review(context.Background(), Input{Reply: neutralReply})

	assert.Equal(t, 1, f.pipeline.Buffer().Len())
	flags, _ := f.sink.ListFlags(context.Background(), 10)
	assert.Len(t, flags, 1)
}
