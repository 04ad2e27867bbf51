// Package app assembles the companion services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/vetlink/companion/backend/internal/analysis/sentiment"
	"github.com/vetlink/companion/backend/internal/config"
	"github.com/vetlink/companion/backend/internal/handler"
	"github.com/vetlink/companion/backend/internal/handler/admin"
	"github.com/vetlink/companion/backend/internal/model/profile"
	"github.com/vetlink/companion/backend/internal/model/role"
	"github.com/vetlink/companion/backend/internal/service/ai"
	"github.com/vetlink/companion/backend/internal/service/analytics"
	auditservice "github.com/vetlink/companion/backend/internal/service/audit"
	"github.com/vetlink/companion/backend/internal/service/chat"
	"github.com/vetlink/companion/backend/internal/service/escalation"
	"github.com/vetlink/companion/backend/internal/service/safety"
	"github.com/vetlink/companion/backend/internal/service/suggest"
	"github.com/vetlink/companion/backend/internal/store"
)

// App holds the long-lived services of one process.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Roles      role.Store
	Repo       store.Repository
	Profiles   profile.Store
	Dispatcher *auditservice.Dispatcher
	Analytics  *analytics.Recorder
	Safety     *safety.Pipeline
	Gateway    ai.Gateway
	Chat       *chat.Service
}

// New wires every service from cfg. Call Close to drain background work.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	repo, err := store.Open(cfg.Storage.Driver, cfg.Storage.SQLitePath, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	profiles, err := openProfiles(cfg.Profile)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("open profile store: %w", err)
	}

	gateway, err := NewGateway(ctx, cfg, logger)
	if err != nil {
		_ = closeProfiles(profiles)
		_ = repo.Close()
		return nil, err
	}

	dispatcher := auditservice.NewDispatcher(auditservice.Config{
		Workers:      cfg.Audit.Workers,
		QueueSize:    cfg.Audit.QueueSize,
		MaxAttempts:  cfg.Audit.MaxAttempts,
		RetryBackoff: cfg.Audit.RetryBackoff,
	}, logger)
	recorder := analytics.NewRecorder(logger, repo, 0)

	pipeline := safety.New(safety.Config{
		Scorer:            sentiment.New(sentiment.Options{SupportWeight: cfg.Guide.SupportWeight}),
		Buffer:            auditservice.NewBuffer(cfg.Guide.FlagBufferSize),
		Sink:              repo,
		Outreach:          profiles,
		Dispatcher:        dispatcher,
		Logger:            logger,
		ReplaceConfidence: cfg.Guide.ReplaceConfidence,
	})

	roles := role.NewMemoryStore(role.Seed())
	chatSvc := chat.NewService(roles, chat.Deps{
		Gateway:     gateway,
		Prompts:     ai.NewPromptManager(),
		Safety:      pipeline,
		Suggestions: suggest.New(cfg.Guide.SuggestionLimit),
		Escalation:  escalation.New(cfg.Guide.EscalationWindow),
		Profiles:    profiles,
		Analytics:   recorder,
		Transcript:  repo,
		Dispatcher:  dispatcher,
		Logger:      logger,
		PromptTurns: cfg.Guide.PromptTurns,
	})

	return &App{
		Config:     cfg,
		Logger:     logger,
		Roles:      roles,
		Repo:       repo,
		Profiles:   profiles,
		Dispatcher: dispatcher,
		Analytics:  recorder,
		Safety:     pipeline,
		Gateway:    gateway,
		Chat:       chatSvc,
	}, nil
}

// NewGateway selects the reply generator named by ai.provider.
func NewGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ai.Gateway, error) {
	switch cfg.AI.Provider {
	case "ark":
		svc, err := ai.NewService(ctx, cfg.AI, logger)
		if err != nil {
			return nil, fmt.Errorf("init ark gateway: %w", err)
		}
		logger.Info("ai gateway ready", zap.String("provider", "ark"), zap.String("model", cfg.AI.Model))
		return svc, nil
	case "openai":
		gw, err := ai.NewOpenAIGateway(cfg.OpenAI, logger)
		if err != nil {
			return nil, fmt.Errorf("init openai gateway: %w", err)
		}
		logger.Info("ai gateway ready", zap.String("provider", "openai"), zap.String("model", cfg.OpenAI.Model))
		return gw, nil
	default:
		logger.Warn("no ai provider configured; replies fall back to the apology text")
		return ai.Unavailable{}, nil
	}
}

var openProfiles = func(cfg config.ProfileConfig) (profile.Store, error) {
	if cfg.Driver == "mysql" {
		s, err := store.NewMySQLProfileStore(cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return profile.NewMemoryStore(), nil
}

// closeProfiles releases stores that hold connections, such as the MySQL pool.
func closeProfiles(p profile.Store) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Router returns the HTTP API for the app.
func (a *App) Router() http.Handler {
	return handler.NewRouter(handler.Options{
		Roles:       a.Roles,
		Chat:        a.Chat,
		Transcripts: a.Repo,
		Admin: admin.Options{
			Buffer: a.Safety.Buffer(),
			Alerts: a.Repo,
			Flags:  a.Repo,
			Stats:  a.Dispatcher,
		},
		Logger: a.Logger,
	})
}

// Close closes every conversation, drains background writes and releases
// storage. Work still queued when ctx expires is abandoned.
func (a *App) Close(ctx context.Context) error {
	a.Chat.CloseAll()

	var errs []error
	if err := a.Dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain audit dispatcher: %w", err))
	}
	if err := a.Analytics.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain analytics: %w", err))
	}
	if err := a.Repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := closeProfiles(a.Profiles); err != nil {
		errs = append(errs, fmt.Errorf("close profile store: %w", err))
	}
	stats := a.Dispatcher.Stats()
	a.Logger.Info("background writes drained",
		zap.Int64("confirmed", stats.Confirmed),
		zap.Int64("failed", stats.Failed),
		zap.Int64("dropped", stats.Dropped),
		zap.Int64("analytics_dropped", a.Analytics.Dropped()),
	)
	return errors.Join(errs...)
}
