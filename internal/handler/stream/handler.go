package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vetlink/companion/backend/internal/model/chat"
	chatService "github.com/vetlink/companion/backend/internal/service/chat"
	"github.com/vetlink/companion/backend/pkg/utils"
)

var errStreamingUnsupported = errors.New("streaming unsupported")

// Handler runs one conversation turn and relays its events as Server-Sent
// Events.
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, logger: logger.Named("stream")}
}

// StreamResponse is the payload of the start, end and error events.
type StreamResponse struct {
	Event     string        `json:"event"`
	SessionID string        `json:"sessionId,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
	Finished  bool          `json:"finished,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// RegisterRoutes mounts the stream route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")
	if strings.TrimSpace(userMessage) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	conv, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, conv, userMessage); err != nil {
		if errors.Is(err, errStreamingUnsupported) {
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.logger.Warn("stream ended early", zap.String("session_id", sessionID), zap.Error(err))
	}
}

type turnResult struct {
	reply    chat.Message
	accepted bool
}

// HandleStreamRequest sends userMessage to conv and writes every event the
// turn publishes until the reply is ready.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, conv *chatService.Conversation, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errStreamingUnsupported
	}

	events, unsubscribe := conv.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	sessionID := conv.Session().ID
	if err := utils.SendSSEEvent(w, flusher, "start", StreamResponse{Event: "start", SessionID: sessionID}); err != nil {
		return err
	}

	done := make(chan turnResult, 1)
	go func() {
		reply, accepted := conv.SendMessage(ctx, userMessage)
		done <- turnResult{reply: reply, accepted: accepted}
	}()

	for {
		select {
		case ev, open := <-events:
			if !open {
				events = nil
				continue
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				return err
			}
		case res := <-done:
			if err := h.drain(w, flusher, events); err != nil {
				return err
			}
			if !res.accepted {
				return utils.SendSSEEvent(w, flusher, "error", StreamResponse{
					Event:     "error",
					SessionID: sessionID,
					Error:     "conversation is not ready for input",
				})
			}
			h.logger.Debug("stream turn complete", zap.String("session_id", sessionID))
			return utils.SendSSEEvent(w, flusher, "end", StreamResponse{
				Event:     "end",
				SessionID: sessionID,
				Message:   &res.reply,
				Finished:  true,
			})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drain flushes events already buffered when the turn finished.
func (h *Handler) drain(w http.ResponseWriter, flusher http.Flusher, events <-chan chatService.Event) error {
	for {
		select {
		case ev, open := <-events:
			if !open {
				return nil
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}
