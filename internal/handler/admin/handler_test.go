package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodel "github.com/vetlink/companion/backend/internal/model/audit"
	"github.com/vetlink/companion/backend/internal/model/chat"
	auditservice "github.com/vetlink/companion/backend/internal/service/audit"
	"github.com/vetlink/companion/backend/internal/store"
)

type fixedStats auditservice.Stats

func (s fixedStats) Stats() auditservice.Stats { return auditservice.Stats(s) }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	return resp
}

func newRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()
	New(opts).RegisterRoutes(r)
	return r
}

func TestFlagsFromBufferAndStore(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := auditmodel.NewFlaggedEntry("that sounds hard", auditmodel.SentimentSnapshot{Sentiment: chat.SentimentNegative, Score: -0.4, Confidence: 0.4}, at, "vet-1", "veteran-navigator")

	buffer := auditservice.NewBuffer(10)
	buffer.Append(entry)
	repo := store.NewMemory()
	require.NoError(t, repo.AppendFlag(context.Background(), entry))

	r := newRouter(Options{Buffer: buffer, Flags: repo})

	var fromBuffer []auditmodel.FlaggedEntry
	resp := get(t, r, "/admin/flags")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fromBuffer))
	require.Len(t, fromBuffer, 1)
	assert.Equal(t, entry.ID, fromBuffer[0].ID)

	var fromStore []auditmodel.FlaggedEntry
	resp = get(t, r, "/admin/flags?source=store&limit=5")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fromStore))
	require.Len(t, fromStore, 1)
	assert.Equal(t, "veteran-navigator", fromStore[0].AssistantType)
}

func TestFlagsWithoutSources(t *testing.T) {
	r := newRouter(Options{})

	resp := get(t, r, "/admin/flags")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, "[]", resp.Body.String())

	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/admin/flags?source=store").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/admin/crisis-alerts").Code)
}

func TestCrisisAlerts(t *testing.T) {
	repo := store.NewMemory()
	alert := auditmodel.NewCrisisAlert("I feel suicidal", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), "vet-1")
	require.NoError(t, repo.AppendCrisisAlert(context.Background(), alert))

	resp := get(t, newRouter(Options{Alerts: repo}), "/admin/crisis-alerts")
	require.Equal(t, http.StatusOK, resp.Code)

	var alerts []auditmodel.CrisisAlert
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.ID, alerts[0].ID)
	assert.False(t, alerts[0].Resolved)
}

func TestAuditStats(t *testing.T) {
	buffer := auditservice.NewBuffer(10)
	buffer.Append(auditmodel.NewFlaggedEntry("meh", auditmodel.SentimentSnapshot{}, time.Now(), "", "family-support"))

	resp := get(t, newRouter(Options{Buffer: buffer, Stats: fixedStats{Confirmed: 7, Failed: 1}}), "/admin/audit")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Dispatcher    auditservice.Stats `json:"dispatcher"`
		BufferedFlags int                `json:"bufferedFlags"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(7), body.Dispatcher.Confirmed)
	assert.Equal(t, int64(1), body.Dispatcher.Failed)
	assert.Equal(t, 1, body.BufferedFlags)
}
