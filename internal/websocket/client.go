package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024 // 64KB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect cross-origin; the token check gates access.
		return true
	},
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	dispatcher *Dispatcher

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan *ServerMessage

	// closed marks send as closed; guarded by the hub's mutex.
	closed bool

	// SID is the opaque session id assigned at connect.
	SID string

	// RoomID is the room this client is bound to; managed by the hub.
	RoomID string

	// Identity hints from the verified connect token, if any. join_room
	// payloads overwrite them.
	UserIDHint      int64
	UsernameHint    string
	DisplayNameHint string

	// RateLimitKey is set at connection time (e.g. client IP) for chat rate limiting.
	RateLimitKey string

	// Connection-scoped context, not tied to the upgrade request.
	ctx context.Context
}

// readPump pumps messages from the websocket connection to the dispatcher.
func (c *Client) readPump() {
	defer func() {
		c.dispatcher.Disconnect(c.ctx, c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.dispatcher.log.Debug().Err(err).Str("sid", c.SID).Msg("websocket read error")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.dispatcher.log.Debug().Err(err).Str("sid", c.SID).Msg("malformed client message")
			continue
		}
		c.dispatcher.Dispatch(c.ctx, c, &msg)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if err := json.NewEncoder(w).Encode(msg); err != nil {
				c.dispatcher.log.Debug().Err(err).Str("sid", c.SID).Msg("encode outbound message")
			}

			// Drain queued messages into the same frame batch.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := json.NewEncoder(w).Encode(<-c.send); err != nil {
					c.dispatcher.log.Debug().Err(err).Str("sid", c.SID).Msg("encode queued message")
				}
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
