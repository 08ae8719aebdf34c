package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/livechat-engine/internal/chat"
	"github.com/capitalize-ai/livechat-engine/internal/middleware"
	"github.com/capitalize-ai/livechat-engine/pkg/logger"
)

// RouterConfig wires the HTTP surface to the engine.
type RouterConfig struct {
	Engine    *chat.Engine
	Hub       *chat.Hub
	History   EventHistory
	Directory AgentDirectory
	Checks    map[string]ReadinessCheck
	Logger    *logger.Logger

	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	healthHandler := NewHealthHandler(cfg.Checks)
	conversationHandler := NewConversationHandler(cfg.Engine, log)
	messageHandler := NewMessageHandler(cfg.Engine, log)
	agentHandler := NewAgentHandler(cfg.Engine, cfg.Directory, log)
	streamHandler := NewStreamHandler(cfg.Engine, cfg.Hub, cfg.History, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		// Customer
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCustomer)
			r.Post("/conversations", conversationHandler.Create)
			r.Get("/me/conversations", conversationHandler.Mine)
			r.Get("/me/unread", conversationHandler.Unread)
		})

		// Staff
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAgent)
			r.Get("/conversations", conversationHandler.List)
			r.Get("/analytics", conversationHandler.Analytics)
			r.Get("/attention", conversationHandler.Attention)
			r.Get("/events", streamHandler.Agents)
			r.Get("/agents", agentHandler.List)
			r.Put("/agents/{id}/status", agentHandler.SetStatus)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(middleware.RoleAdmin))
				r.Post("/agents", agentHandler.Register)
				r.Post("/inbound", conversationHandler.Inbound)
			})
		})

		r.Route("/conversations/{id}", func(r chi.Router) {
			// Either party
			r.Get("/", conversationHandler.Get)
			r.Post("/messages", messageHandler.Send)
			r.Post("/typing", messageHandler.StartTyping)
			r.Delete("/typing", messageHandler.StopTyping)
			r.Post("/focus", messageHandler.Focus)
			r.Delete("/focus", messageHandler.Unfocus)
			r.Post("/close", conversationHandler.Close)
			r.Get("/events", streamHandler.Conversation)

			r.With(middleware.RequireCustomer).Post("/rate", conversationHandler.Rate)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAgent)
				r.Post("/reopen", conversationHandler.Reopen)
				r.Post("/assign", conversationHandler.Assign)
				r.Post("/snooze", conversationHandler.Snooze)
				r.Post("/merge", conversationHandler.Merge)
				r.Post("/assist", conversationHandler.Assist)
				r.Post("/tags", conversationHandler.AddTag)
				r.Delete("/tags/{tag}", conversationHandler.RemoveTag)
				r.Get("/history", streamHandler.History)
			})
		})
	})

	return r
}
