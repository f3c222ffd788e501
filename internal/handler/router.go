/*
Package handler provides the HTTP handlers and routing setup for the ticket chat service.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"ticketchat/internal/pkg/auth/jwt"
	"ticketchat/internal/pkg/limiter"
	"ticketchat/internal/pkg/logx"
	"ticketchat/internal/pkg/resp"
)

const (
	JoinRate  = 1
	JoinBurst = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
func Router(deps *AppDeps) http.Handler {
	createLimiter := limiter.NewIPRateLimiter(rate.Limit(deps.Config.CreateRatePerSecond), deps.Config.CreateBurst)
	joinLimiter := limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":   "ok",
			"service":  "Ticket Chat",
			"channels": deps.Chat.Registry().Len(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Get("/ws/chat", HandleWebSocket(wsUpgrader, joinLimiter, deps))

	r.Group(func(api chi.Router) {
		api.Use(jwt.RequireIdentity(deps.Config.JWTSecret))

		api.With(createLimiter.Middleware).Post("/ws/ticket/create", HandleCreateTicket(deps))

		api.Post("/ticket/close", HandleCloseTicket(deps))
		api.Get("/ticket/chat", HandleTicketChat(deps))

		api.Get("/worker/tickets/list", HandleWorkerTickets(deps))
		api.Get("/mentor/ticket/list", HandleMentorTickets(deps))
	})

	return r
}
