package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	auditmodel "github.com/vetlink/companion/backend/internal/model/audit"
	auditservice "github.com/vetlink/companion/backend/internal/service/audit"
	"github.com/vetlink/companion/backend/pkg/utils"
)

// AlertLister reads persisted crisis alerts, newest first.
type AlertLister interface {
	ListCrisisAlerts(ctx context.Context, limit int) ([]auditmodel.CrisisAlert, error)
}

// FlagLister reads persisted flagged replies, newest first.
type FlagLister interface {
	ListFlags(ctx context.Context, limit int) ([]auditmodel.FlaggedEntry, error)
}

// StatsSource reports background write counters.
type StatsSource interface {
	Stats() auditservice.Stats
}

// Options configures the review surface. Nil sources disable their routes.
type Options struct {
	Buffer *auditservice.Buffer
	Alerts AlertLister
	Flags  FlagLister
	Stats  StatsSource
	Logger *zap.Logger
}

// Handler serves the review surface for flagged replies and crisis alerts.
// Access control is handled in front of it.
type Handler struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{opts: opts, logger: logger.Named("admin")}
}

// RegisterRoutes mounts the admin routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Get("/flags", h.handleFlags)
		r.Get("/crisis-alerts", h.handleCrisisAlerts)
		r.Get("/audit", h.handleAudit)
	})
}

// handleFlags returns the in-memory review buffer, or the durable history
// when ?source=store is given.
func (h *Handler) handleFlags(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "store" {
		if h.opts.Flags == nil {
			utils.RespondError(w, http.StatusServiceUnavailable, "flag storage unavailable")
			return
		}
		flags, err := h.opts.Flags.ListFlags(r.Context(), limitParam(r))
		if err != nil {
			h.logger.Error("list flags failed", zap.Error(err))
			utils.RespondError(w, http.StatusInternalServerError, "failed to load flags")
			return
		}
		if flags == nil {
			flags = []auditmodel.FlaggedEntry{}
		}
		utils.RespondJSON(w, http.StatusOK, flags)
		return
	}

	entries := []auditmodel.FlaggedEntry{}
	if h.opts.Buffer != nil {
		entries = append(entries, h.opts.Buffer.Entries()...)
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleCrisisAlerts(w http.ResponseWriter, r *http.Request) {
	if h.opts.Alerts == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "alert storage unavailable")
		return
	}
	alerts, err := h.opts.Alerts.ListCrisisAlerts(r.Context(), limitParam(r))
	if err != nil {
		h.logger.Error("list crisis alerts failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to load crisis alerts")
		return
	}
	if alerts == nil {
		alerts = []auditmodel.CrisisAlert{}
	}
	utils.RespondJSON(w, http.StatusOK, alerts)
}

func (h *Handler) handleAudit(w http.ResponseWriter, _ *http.Request) {
	var resp struct {
		Dispatcher    *auditservice.Stats `json:"dispatcher,omitempty"`
		BufferedFlags int                 `json:"bufferedFlags"`
	}
	if h.opts.Stats != nil {
		stats := h.opts.Stats.Stats()
		resp.Dispatcher = &stats
	}
	if h.opts.Buffer != nil {
		resp.BufferedFlags = h.opts.Buffer.Len()
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
