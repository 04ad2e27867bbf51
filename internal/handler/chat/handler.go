package chat

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

// TranscriptReader returns the persisted transcript of a session.
type TranscriptReader interface {
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
}

// Handler exposes conversation operations over HTTP.
type Handler struct {
	chatSvc     *chatService.Service
	transcripts TranscriptReader
	logger      *zap.Logger
}

// New creates the chat handler. transcripts may be nil.
func New(chatSvc *chatService.Service, transcripts TranscriptReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc:     chatSvc,
		transcripts: transcripts,
		logger:      logger.Named("chat_handler"),
	}
}

// RegisterRoutes mounts the session routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleCloseSession)
		r.Get("/transcript", h.handleTranscript)
		r.Post("/messages", h.handleSendMessage)
		r.Post("/suggestions", h.handleSelectSuggestion)
		r.Post("/escalation", h.handleEscalation)
	})
}

type turnResponse struct {
	Message  *chat.Message         `json:"message,omitempty"`
	Snapshot chatService.Snapshot `json:"snapshot"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RoleID string `json:"roleId"`
		UserID string `json:"userId"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.chatSvc.CreateSession(r.Context(), payload.RoleID, payload.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, conv.Snapshot())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv.Snapshot())
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "transcript storage unavailable")
		return
	}
	messages, err := h.transcripts.ListMessages(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.logger.Error("list transcript failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	h.handleTurn(w, r, (*chatService.Conversation).SendMessage)
}

func (h *Handler) handleSelectSuggestion(w http.ResponseWriter, r *http.Request) {
	h.handleTurn(w, r, (*chatService.Conversation).SelectSuggestion)
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request, send func(*chatService.Conversation, context.Context, string) (chat.Message, bool)) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	reply, accepted := send(conv, r.Context(), payload.Text)
	if !accepted {
		utils.RespondError(w, http.StatusConflict, "conversation is not ready for input")
		return
	}
	utils.RespondJSON(w, http.StatusOK, turnResponse{Message: &reply, Snapshot: conv.Snapshot()})
}

func (h *Handler) handleEscalation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.conversation(w, r)
	if !ok {
		return
	}

	var payload struct {
		Accept *bool `json:"accept"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil || payload.Accept == nil {
		utils.RespondError(w, http.StatusBadRequest, "accept is required")
		return
	}

	ack, resolved := conv.RespondToEscalation(r.Context(), *payload.Accept)
	if !resolved {
		utils.RespondError(w, http.StatusConflict, "no escalation offer is pending")
		return
	}
	resp := turnResponse{Snapshot: conv.Snapshot()}
	if ack.ID != "" {
		resp.Message = &ack
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) conversation(w http.ResponseWriter, r *http.Request) (*chatService.Conversation, bool) {
	conv, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return nil, false
	}
	return conv, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrRoleRequired), errors.Is(err, chatService.ErrRoleNotFound):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("chat request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
