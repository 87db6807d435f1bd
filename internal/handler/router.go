package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/handler/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/handler/realtime"
	"github.com/zhouzirui/chat-relay/backend/internal/handler/static"
	middlewarePkg "github.com/zhouzirui/chat-relay/backend/internal/middleware"
	chatService "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/session"
	"github.com/zhouzirui/chat-relay/backend/pkg/utils"
)

const healthTimeout = 2 * time.Second

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg *config.Config, chatSvc *chatService.Service, sessions *session.Provider, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.Server.AllowedOrigins, cfg.Session.HeaderName))

	chatHandler := chat.New(chatSvc, sessions, cfg.Session.Scoped, log)
	realtimeHandler := realtime.New(chatSvc, sessions, cfg.Session.Scoped, cfg.Server.AllowedOrigins, log)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", handleHealth(chatSvc, log))

		// POST /chat, GET /messages
		chatHandler.RegisterRoutes(api)

		// GET /ws
		realtimeHandler.RegisterRoutes(api)
	})

	static.New(cfg.Server.StaticDir).RegisterRoutes(r)

	return r
}

func handleHealth(chatSvc *chatService.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := chatSvc.Ping(ctx); err != nil {
			log.Warn("health check failed", zap.Error(err))
			utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
