package chat

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	chatService "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/session"
	"github.com/zhouzirui/chat-relay/backend/pkg/utils"
)

const maxBodyBytes = 64 << 10

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	sessions *session.Provider
	scoped   bool
	log      *zap.Logger
}

// New creates the chat handler. With scoped false no credential is issued and every request shares
// the unscoped history.
func New(chatSvc *chatService.Service, sessions *session.Provider, scoped bool, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		chatSvc:  chatSvc,
		sessions: sessions,
		scoped:   scoped,
		log:      log,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/messages", h.handleMessages)
}

type chatRequest struct {
	Message  string `json:"message"`
	Language string `json:"language"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// handleChat 处理一次对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		h.writeError(w, fmt.Errorf("%w: invalid request body", chatService.ErrInvalidRequest))
		return
	}

	if err := h.chatSvc.Validate(payload.Message); err != nil {
		h.writeError(w, err)
		return
	}

	sessionID := ""
	if h.scoped {
		var isNew bool
		sessionID, isNew = h.sessions.Resolve(h.sessions.Credential(r))
		if isNew {
			// Issued before the exchange: the user turn may be stored even if the relay fails.
			h.sessions.Issue(w, sessionID)
		}
	}

	reply, err := h.chatSvc.Exchange(r.Context(), sessionID, payload.Message, payload.Language)
	if err != nil {
		h.writeError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// handleMessages 返回会话历史
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if h.scoped {
		sessionID = h.sessions.Credential(r)
		if sessionID == "" {
			h.writeError(w, chatService.ErrSessionRequired)
			return
		}
	}

	turns, err := h.chatSvc.History(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if turns == nil {
		turns = []chat.Turn{}
	}

	utils.RespondJSON(w, http.StatusOK, turns)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	failure := chatService.Describe(err)
	if failure.Status >= http.StatusInternalServerError {
		h.log.Error("chat request failed", zap.String("code", failure.Code), zap.Error(err))
	}
	utils.RespondError(w, failure.Status, failure.Code, failure.Message)
}
