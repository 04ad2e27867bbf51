package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodel "github.com/vetlink/companion/backend/internal/model/audit"
	"github.com/vetlink/companion/backend/internal/model/chat"
)

func newSQLiteForTest(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "companion.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"memory": NewMemory(),
		"sqlite": newSQLiteForTest(t),
	}
}

func TestAppendFlagIsIdempotent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := auditmodel.NewFlaggedEntry("I can't help with that.", auditmodel.SentimentSnapshot{
		Sentiment: chat.SentimentNegative, Score: -1, Confidence: 0.55,
	}, at, "user-1", "veteran-navigator")

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.AppendFlag(ctx, entry))
			require.NoError(t, repo.AppendFlag(ctx, entry))

			flags, err := repo.ListFlags(ctx, 10)
			require.NoError(t, err)
			require.Len(t, flags, 1)
			assert.Equal(t, entry.ID, flags[0].ID)
			assert.Equal(t, chat.SentimentNegative, flags[0].Sentiment.Sentiment)
			assert.InDelta(t, 0.55, flags[0].Sentiment.Confidence, 1e-9)
			assert.True(t, at.Equal(flags[0].CreatedAt))
		})
	}
}

func TestCrisisAlertsNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := auditmodel.NewCrisisAlert("first", base, "")
	newer := auditmodel.NewCrisisAlert("second", base.Add(time.Minute), "user-2")

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.AppendCrisisAlert(ctx, older))
			require.NoError(t, repo.AppendCrisisAlert(ctx, newer))
			require.NoError(t, repo.AppendCrisisAlert(ctx, newer))

			alerts, err := repo.ListCrisisAlerts(ctx, 0)
			require.NoError(t, err)
			require.Len(t, alerts, 2)
			assert.Equal(t, "second", alerts[0].Text)
			assert.Equal(t, "user-2", alerts[0].UserID)
			assert.False(t, alerts[0].Resolved)
			assert.Equal(t, "first", alerts[1].Text)

			limited, err := repo.ListCrisisAlerts(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestMessagesRoundTripInOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user := chat.Message{ID: "m1", SessionID: "s1", Sender: chat.SenderUser, Text: "Help with my resume", CreatedAt: base, Category: chat.CategoryResume}
	reply := chat.Message{
		ID: "m2", SessionID: "s1", Sender: chat.SenderAssistant, Text: "Here is a summary.",
		CreatedAt: base.Add(time.Second), Category: chat.CategoryResume,
		Sentiment: chat.SentimentPositive, SentimentScore: 1, Confidence: 0.6,
		Suggestions: []string{"Tailor it to a job posting", "Practice interview answers"},
	}
	other := chat.Message{ID: "m3", SessionID: "s2", Sender: chat.SenderUser, Text: "hi", CreatedAt: base}

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, m := range []chat.Message{reply, user, other, reply} {
				require.NoError(t, repo.AppendMessage(ctx, m))
			}

			got, err := repo.ListMessages(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "m1", got[0].ID)
			assert.Equal(t, "m2", got[1].ID)
			assert.Equal(t, reply.Suggestions, got[1].Suggestions)
			assert.Equal(t, chat.SentimentPositive, got[1].Sentiment)
		})
	}
}

func TestAppendEvent(t *testing.T) {
	s := newSQLiteForTest(t)
	ev := Event{ID: "e1", Name: "chat_opened", Attrs: map[string]string{"role": "veteran-navigator"}, CreatedAt: time.Now()}
	require.NoError(t, s.AppendEvent(context.Background(), ev))
	require.NoError(t, s.AppendEvent(context.Background(), ev))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM analytics_events`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRebindForPostgres(t *testing.T) {
	s := &SQLStore{dialect: dialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", s.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &SQLStore{dialect: dialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
