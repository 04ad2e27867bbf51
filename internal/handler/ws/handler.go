package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatService "github.com/vetlink/companion/backend/internal/service/chat"
	"github.com/vetlink/companion/backend/pkg/utils"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Handler upgrades a session to a live WebSocket channel. Inbound frames
// drive the conversation; every conversation event is pushed back.
type Handler struct {
	chatSvc  *chatService.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger.Named("websocket"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the WebSocket route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage carries typed input or a chosen suggestion.
type TextMessage struct {
	Text string `json:"text"`
}

// EscalationMessage answers a pending escalation offer.
type EscalationMessage struct {
	Accept bool `json:"accept"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// connection serializes writes; gorilla allows one concurrent writer.
type connection struct {
	conn      *websocket.Conn
	sessionID string
	logger    *zap.Logger

	mu sync.Mutex
}

func (c *connection) send(kind string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := outgoingMessage{
		Type:      kind,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("write failed", zap.String("type", kind), zap.Error(err))
	}
}

func (c *connection) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	conv, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("session_id", sessionID))
	logger.Info("connection opened")

	events, unsubscribe := conv.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{conn: conn, sessionID: sessionID, logger: logger}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.send("connected", conv.Snapshot())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.forward(ctx, c, events)
	}()
	go func() {
		defer wg.Done()
		h.pingLoop(ctx, conn)
	}()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", zap.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			c.sendError("session mismatch")
			continue
		}
		h.handleMessage(ctx, c, conv, &msg, &wg)
	}

	cancel()
	wg.Wait()
	logger.Info("connection closed")
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, conv *chatService.Conversation, msg *inboundMessage, wg *sync.WaitGroup) {
	switch msg.Type {
	case "message", "suggestion":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			c.sendError("invalid text payload")
			return
		}
		if strings.TrimSpace(text.Text) == "" {
			c.sendError("text is required")
			return
		}
		send := conv.SendMessage
		if msg.Type == "suggestion" {
			send = conv.SelectSuggestion
		}
		// Turns run off the read loop so pongs keep arriving while the
		// gateway is busy. Replies reach the client as message events.
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := send(ctx, text.Text); !ok {
				c.sendError("conversation is not ready for input")
			}
		}()
	case "escalation":
		var answer EscalationMessage
		if err := json.Unmarshal(msg.Data, &answer); err != nil {
			c.sendError("invalid escalation payload")
			return
		}
		if _, ok := conv.RespondToEscalation(ctx, answer.Accept); !ok {
			c.sendError("no escalation offer is pending")
		}
	case "snapshot":
		c.send("snapshot", conv.Snapshot())
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

// forward pushes conversation events until the connection or the
// conversation goes away.
func (h *Handler) forward(ctx context.Context, c *connection, events <-chan chatService.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.send("closed", nil)
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			c.send("event", ev)
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
