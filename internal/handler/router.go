package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vetlink/companion/backend/internal/handler/admin"
	"github.com/vetlink/companion/backend/internal/handler/chat"
	rolehandler "github.com/vetlink/companion/backend/internal/handler/role"
	"github.com/vetlink/companion/backend/internal/handler/stream"
	"github.com/vetlink/companion/backend/internal/handler/ws"
	middlewarePkg "github.com/vetlink/companion/backend/internal/middleware"
	"github.com/vetlink/companion/backend/internal/model/role"
	chatService "github.com/vetlink/companion/backend/internal/service/chat"
)

// Options are the services the router exposes.
type Options struct {
	Roles       role.Store
	Chat        *chatService.Service
	Transcripts chat.TranscriptReader
	Admin       admin.Options
	Logger      *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Admin.Logger == nil {
		opts.Admin.Logger = logger
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		rolehandler.New(opts.Roles).RegisterRoutes(api)
		chat.New(opts.Chat, opts.Transcripts, logger).RegisterRoutes(api)
		stream.New(opts.Chat, logger).RegisterRoutes(api)
		ws.New(opts.Chat, logger).RegisterRoutes(api)
		admin.New(opts.Admin).RegisterRoutes(api)
	})

	return r
}
