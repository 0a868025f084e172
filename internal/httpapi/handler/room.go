package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/roundtable-games/avalon-server/internal/auth"
	"github.com/roundtable-games/avalon-server/internal/store"
)

// Validation limits for room endpoints.
const (
	UsernameMaxLen    = 64
	DisplayNameMaxLen = 64
)

// RoomCreator is the store surface the room handlers need.
type RoomCreator interface {
	CreateRoom(ctx context.Context, code string, hostID int64) (*store.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*store.Room, error)
}

// RoomHandler handles room-related HTTP requests.
type RoomHandler struct {
	log         zerolog.Logger
	rooms       RoomCreator
	tokenSecret []byte
}

// NewRoomHandler creates a RoomHandler. If tokenSecret is non-empty,
// create/join responses include a WebSocket auth token.
func NewRoomHandler(rooms RoomCreator, tokenSecret []byte, log zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		log:         log.With().Str("component", "rooms").Logger(),
		rooms:       rooms,
		tokenSecret: tokenSecret,
	}
}

type createRoomRequest struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type roomResponse struct {
	Room      *store.Room `json:"room"`
	Token     string      `json:"token,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

func validateIdentity(userID int64, username, displayName string) string {
	if userID == 0 {
		return "user_id is required"
	}
	if strings.TrimSpace(username) == "" {
		return "username is required"
	}
	if len(username) > UsernameMaxLen {
		return fmt.Sprintf("username must be at most %d characters", UsernameMaxLen)
	}
	if len(displayName) > DisplayNameMaxLen {
		return fmt.Sprintf("display_name must be at most %d characters", DisplayNameMaxLen)
	}
	return ""
}

// CreateRoom handles POST /api/rooms. The requester becomes the host.
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg := validateIdentity(req.UserID, req.Username, req.DisplayName); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	code, err := GenerateRoomCode()
	if err != nil {
		h.log.Error().Err(err).Str("request_id", requestID(r)).Msg("generate room code")
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	room, err := h.rooms.CreateRoom(r.Context(), code, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("request_id", requestID(r)).Msg("create room")
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}

	resp := roomResponse{Room: room}
	if err := h.attachToken(&resp, req); err != nil {
		h.log.Error().Err(err).Str("request_id", requestID(r)).Msg("generate token")
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetRoom handles GET /api/rooms/{code}.
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	if !ValidRoomCode(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}
	room, err := h.rooms.GetRoomByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("request_id", requestID(r)).Msg("get room")
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{Room: room})
}

// JoinRoom handles POST /api/rooms/{code}/join. It validates the room exists
// and issues a connection token; actual membership happens over the socket.
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	if !ValidRoomCode(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg := validateIdentity(req.UserID, req.Username, req.DisplayName); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	room, err := h.rooms.GetRoomByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("request_id", requestID(r)).Msg("get room for join")
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}

	resp := roomResponse{Room: room}
	if err := h.attachToken(&resp, req); err != nil {
		h.log.Error().Err(err).Str("request_id", requestID(r)).Msg("generate token")
		http.Error(w, "failed to join room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *RoomHandler) attachToken(resp *roomResponse, req createRoomRequest) error {
	if len(h.tokenSecret) == 0 {
		return nil
	}
	token, expiresAt, err := auth.GenerateToken(req.UserID, req.Username, req.DisplayName, h.tokenSecret, auth.DefaultTokenExpiry)
	if err != nil {
		return err
	}
	resp.Token = token
	resp.ExpiresAt = &expiresAt
	return nil
}
