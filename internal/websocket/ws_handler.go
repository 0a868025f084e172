package websocket

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roundtable-games/avalon-server/internal/auth"
)

// rateLimitKeyFromRequest returns a key for rate limiting (e.g. client IP).
func rateLimitKeyFromRequest(r *http.Request) string {
	if x := r.Header.Get("X-Real-IP"); x != "" {
		return x
	}
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		return x
	}
	return r.RemoteAddr
}

// WSHandler upgrades HTTP requests to websocket connections and hands them to
// the dispatcher.
type WSHandler struct {
	log         zerolog.Logger
	dispatcher  *Dispatcher
	tokenSecret []byte
}

// NewWSHandler creates a WSHandler. When tokenSecret is set, connections must
// present a valid HMAC token; identity from the claims seeds the session.
// With no secret, connections are anonymous until join_room.
func NewWSHandler(dispatcher *Dispatcher, tokenSecret []byte, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		log:         log.With().Str("component", "ws").Logger(),
		dispatcher:  dispatcher,
		tokenSecret: tokenSecret,
	}
}

// HandleWebSocket handles GET /ws. The token comes via query param or
// Authorization header; auth is checked before upgrading.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var claims *auth.Claims
	if len(h.tokenSecret) == 0 {
		// Dev mode: identity from query parameters, unverified.
		if uid, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64); err == nil && uid != 0 {
			claims = &auth.Claims{
				UserID:      uid,
				Username:    r.URL.Query().Get("username"),
				DisplayName: r.URL.Query().Get("display_name"),
			}
		}
	} else {
		token := r.URL.Query().Get("token")
		if token == "" {
			const prefix = "Bearer "
			if v := r.Header.Get("Authorization"); strings.HasPrefix(v, prefix) {
				token = strings.TrimSpace(v[len(prefix):])
			}
		}
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		var err error
		claims, err = auth.VerifyToken(token, h.tokenSecret)
		if err != nil {
			h.log.Debug().Err(err).Msg("token verification failed")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// Background context: event handling outlives the upgrade request, whose
	// context is canceled when this handler returns.
	client := &Client{
		dispatcher:   h.dispatcher,
		conn:         conn,
		send:         make(chan *ServerMessage, 256),
		SID:          uuid.NewString(),
		RateLimitKey: rateLimitKeyFromRequest(r),
		ctx:          context.Background(),
	}
	if claims != nil {
		client.UserIDHint = claims.UserID
		client.UsernameHint = claims.Username
		client.DisplayNameHint = claims.DisplayName
	}

	h.dispatcher.Connect(client.ctx, client)

	go client.writePump()
	go client.readPump()
}
