package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/roundtable-games/avalon-server/internal/cache"
	"github.com/roundtable-games/avalon-server/internal/games"
	"github.com/roundtable-games/avalon-server/internal/httpapi/handler"
	"github.com/roundtable-games/avalon-server/internal/ratelimit"
	"github.com/roundtable-games/avalon-server/internal/store"
	"github.com/roundtable-games/avalon-server/internal/websocket"
)

// NewRouter builds the root HTTP router and wires the realtime stack behind
// GET /ws. tokenSecret signs WebSocket auth tokens; if empty, connections are
// anonymous and create/join responses omit the token. rateLimiter is optional:
// nil disables limiting on create room, join room, and chat.
func NewRouter(pool *pgxpool.Pool, cacheClient *cache.Client, tokenSecret []byte, rateLimiter ratelimit.Limiter, log zerolog.Logger) http.Handler {
	if rateLimiter == nil {
		rateLimiter = ratelimit.Noop{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	roomStore := store.NewRoomStore(pool)

	sessions := websocket.NewSessionRegistry()
	hub := websocket.NewHub(sessions, log)
	registry := games.NewRegistry(cacheClient, log)
	dispatcher := websocket.NewDispatcher(hub, hub, sessions, registry, cacheClient, roomStore, rateLimiter, log)
	wsHandler := websocket.NewWSHandler(dispatcher, tokenSecret, log)

	r.Get("/ws", wsHandler.HandleWebSocket)

	rateLimitByIP := RateLimitMiddleware(rateLimiter, RateLimitKeyByIP)

	roomHandler := handler.NewRoomHandler(roomStore, tokenSecret, log)
	r.Route("/api/rooms", func(r chi.Router) {
		r.Use(LimitRequestBody(DefaultMaxBodyBytes))
		r.With(rateLimitByIP).Post("/", roomHandler.CreateRoom)
		r.Get("/{code}", roomHandler.GetRoom)
		r.With(rateLimitByIP).Post("/{code}/join", roomHandler.JoinRoom)
	})

	return r
}

// DefaultRateLimiter returns an in-memory rate limiter for create/join/chat:
// 20 requests per minute per IP. For multi-instance deployments, replace with
// a Redis-backed limiter.
func DefaultRateLimiter() ratelimit.Limiter {
	return ratelimit.NewInMemory(20, time.Minute)
}
