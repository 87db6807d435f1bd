// Package realtime serves the chat pipeline over a WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/session"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	maxFrameSize = 64 << 10
)

// Frame types.
const (
	TypeChat    = "chat"
	TypeHistory = "history"
	TypeReply   = "reply"
	TypeError   = "error"
)

// Handler WebSocket聊天处理器
type Handler struct {
	chatSvc  *chatservice.Service
	sessions *session.Provider
	scoped   bool
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New creates the WebSocket handler. Browser origins are checked against allowedOrigins; "*" allows any.
func New(chatSvc *chatservice.Service, sessions *session.Provider, scoped bool, allowedOrigins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		chatSvc:  chatSvc,
		sessions: sessions,
		scoped:   scoped,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// Inbound is a client frame.
type Inbound struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	Language string `json:"language,omitempty"`
}

// ReplyFrame answers a chat frame.
type ReplyFrame struct {
	Type  string `json:"type"`
	Reply string `json:"reply"`
}

// HistoryFrame answers a history frame.
type HistoryFrame struct {
	Type     string      `json:"type"`
	Messages []chat.Turn `json:"messages"`
}

// ErrorFrame carries the same codes as the HTTP error body.
type ErrorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	var header http.Header
	if h.scoped {
		var isNew bool
		sessionID, isNew = h.sessions.Resolve(h.sessions.Credential(r))
		if isNew {
			header = h.sessions.Header(sessionID)
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.log.With(zap.String("session_id", sessionID))
	log.Debug("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		out := h.dispatch(ctx, sessionID, data)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(out); err != nil {
			log.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}

// dispatch runs one inbound frame through the pipeline and builds the answer.
func (h *Handler) dispatch(ctx context.Context, sessionID string, data []byte) any {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return ErrorFrame{Type: TypeError, Code: chatservice.CodeInvalidRequest, Error: "invalid frame"}
	}

	switch in.Type {
	case TypeChat:
		reply, err := h.chatSvc.Exchange(ctx, sessionID, in.Message, in.Language)
		if err != nil {
			return errorFrame(err)
		}
		return ReplyFrame{Type: TypeReply, Reply: reply}
	case TypeHistory:
		turns, err := h.chatSvc.History(ctx, sessionID)
		if err != nil {
			return errorFrame(err)
		}
		if turns == nil {
			turns = []chat.Turn{}
		}
		return HistoryFrame{Type: TypeHistory, Messages: turns}
	default:
		return ErrorFrame{Type: TypeError, Code: chatservice.CodeInvalidRequest, Error: "unknown frame type"}
	}
}

func errorFrame(err error) ErrorFrame {
	failure := chatservice.Describe(err)
	return ErrorFrame{Type: TypeError, Code: failure.Code, Error: failure.Message}
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// WriteControl is safe alongside the reader loop's writes.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
