package websocket

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/roundtable-games/avalon-server/internal/metrics"
)

// Hub maintains the set of active clients and fans messages out to them.
// Clients are keyed by session id; a client belongs to at most one room at a
// time.
type Hub struct {
	log      zerolog.Logger
	sessions *SessionRegistry

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

// NewHub creates a hub over the given session registry.
func NewHub(sessions *SessionRegistry, log zerolog.Logger) *Hub {
	return &Hub{
		log:      log.With().Str("component", "hub").Logger(),
		sessions: sessions,
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
	}
}

// Register adds a connected client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.SID] = c
	total := len(h.clients)
	h.mu.Unlock()
	metrics.ConnectionsActive.Set(float64(total))
	h.log.Debug().Str("sid", c.SID).Int("total", total).Msg("client registered")
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.SID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.SID)
	if c.RoomID != "" {
		h.detachLocked(c)
	}
	// Closing under the write lock: send only touches the channel while
	// holding the read lock, so no enqueue can straddle the close.
	c.closed = true
	close(c.send)
	total := len(h.clients)
	h.mu.Unlock()
	metrics.ConnectionsActive.Set(float64(total))
	h.log.Debug().Str("sid", c.SID).Int("total", total).Msg("client unregistered")
}

// JoinRoom binds the client to a room, detaching it from any previous one.
func (h *Hub) JoinRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.RoomID != "" {
		h.detachLocked(c)
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.SID] = c
	c.RoomID = roomID
}

// LeaveRoom detaches the client from its room.
func (h *Hub) LeaveRoom(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c)
}

func (h *Hub) detachLocked(c *Client) {
	room, ok := h.rooms[c.RoomID]
	if ok {
		delete(room, c.SID)
		if len(room) == 0 {
			delete(h.rooms, c.RoomID)
		}
	}
	c.RoomID = ""
}

// Emit sends one message to one session. Slow consumers are dropped rather
// than allowed to block the sender.
func (h *Hub) Emit(sid string, event string, payload any) {
	h.mu.RLock()
	c, ok := h.clients[sid]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.send(c, &ServerMessage{Event: event, Payload: payload})
}

// EmitRoom broadcasts an identical message to every client in the room.
func (h *Hub) EmitRoom(roomID string, event string, payload any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	msg := &ServerMessage{Event: event, Payload: payload}
	for _, c := range targets {
		h.send(c, msg)
	}
}

// EmitProjected sends each user in the room a payload built for them. Users
// are deduplicated by the session registry; payloadFor runs once per user.
func (h *Hub) EmitProjected(roomID string, event string, payloadFor func(userID int64) any) {
	for _, s := range h.sessions.InRoom(roomID) {
		h.Emit(s.SID, event, payloadFor(s.UserID))
	}
}

// send enqueues without blocking. The read lock is held across the channel
// send so Unregister cannot close the channel out from under a concurrent
// emitter.
func (h *Hub) send(c *Client, msg *ServerMessage) {
	h.mu.RLock()
	if c.closed {
		h.mu.RUnlock()
		return
	}
	select {
	case c.send <- msg:
		h.mu.RUnlock()
		return
	default:
	}
	h.mu.RUnlock()
	h.log.Warn().Str("sid", c.SID).Str("event", msg.Event).Msg("send buffer full, dropping client")
	h.Unregister(c)
}

// RoomClientCount returns the number of clients bound to a room.
func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
