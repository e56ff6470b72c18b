package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler/httperr"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/ai"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/qa"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler WebSocket问答处理器
type Handler struct {
	qaSvc    *qa.Service
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(qaSvc *qa.Service) *Handler {
	return &Handler{
		qaSvc: qaSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// QuestionMessage 提问消息
type QuestionMessage struct {
	Question string `json:"question"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.qaSvc.Sessions().GetSession(r.Context(), sessionID)
	if err != nil {
		httperr.Respond(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	// r.Context() is not canceled once the connection is hijacked; readLoop
	// cancels ctx when the client goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	inbound := make(chan inboundMessage, 8)
	go h.readLoop(ctx, cancel, conn, inbound)
	go h.pingLoop(ctx, conn)

	h.send(conn, sessionID, "connected", map[string]any{
		"hasDocument": session.HasDocument,
		"aiAvailable": h.qaSvc.AIAvailable(),
	})

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inbound:
			if msg.SessionID != "" && msg.SessionID != sessionID {
				h.sendError(conn, sessionID, "session mismatch")
				continue
			}

			h.handleMessage(ctx, conn, sessionID, &msg)
		}
	}
}

// readLoop 持续读取客户端消息，连接断开时取消ctx
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, inbound chan<- inboundMessage) {
	defer cancel()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, sessionID string, msg *inboundMessage) {
	switch msg.Type {
	case "question":
		h.handleQuestion(ctx, conn, sessionID, msg.Data)
	case "history":
		h.handleHistory(ctx, conn, sessionID)
	default:
		h.sendError(conn, sessionID, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) handleQuestion(ctx context.Context, conn *websocket.Conn, sessionID string, raw json.RawMessage) {
	var payload QuestionMessage
	if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil {
		h.sendError(conn, sessionID, "invalid question payload")
		return
	}

	onRetry := func(retry int, delay time.Duration, cause error) {
		h.send(conn, sessionID, "retrying", map[string]any{
			"retry":        retry,
			"delaySeconds": delay.Seconds(),
			"error":        cause.Error(),
		})
	}

	entry, err := h.qaSvc.Ask(ctx, sessionID, payload.Question, onRetry)
	if err != nil {
		log.Printf("[websocket] question failed session=%s: %v", sessionID, err)
		h.sendFailure(conn, sessionID, err)
		return
	}

	h.send(conn, sessionID, "answer", entry)
}

func (h *Handler) handleHistory(ctx context.Context, conn *websocket.Conn, sessionID string) {
	entries, err := h.qaSvc.Conversation(ctx, sessionID)
	if err != nil {
		h.sendFailure(conn, sessionID, err)
		return
	}
	h.send(conn, sessionID, "history", chat.NumberEntries(entries))
}

func (h *Handler) send(conn *websocket.Conn, sessionID, msgType string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msgType, err)
	}
}

func (h *Handler) sendError(conn *websocket.Conn, sessionID, message string) {
	h.send(conn, sessionID, "error", map[string]any{"message": message})
}

// sendFailure reports a service error with the status the REST API would use.
func (h *Handler) sendFailure(conn *websocket.Conn, sessionID string, err error) {
	data := map[string]any{
		"message": err.Error(),
		"status":  httperr.Status(err),
	}
	if kind := ai.KindOf(err); kind != "" {
		data["kind"] = kind
	}
	h.send(conn, sessionID, "error", data)
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// WriteControl is safe alongside the handler's WriteJSON calls
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
