package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionTTL bounds how long a session record outlives its last write. Live
// connections rewrite the record on every room change, so only abandoned
// sessions age out.
const sessionTTL = 24 * time.Hour

// Session is the persisted mirror of one transport connection.
type Session struct {
	SID         string `json:"sid"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	RoomID      string `json:"room_id,omitempty"`
}

func sessionKey(sid string) string { return "session:" + sid }

// SaveSession writes the session record, resetting its TTL.
func (c *Client) SaveSession(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return c.rdb.Set(ctx, sessionKey(s.SID), data, sessionTTL).Err()
}

// GetSession returns the session record, or nil if it does not exist.
func (c *Client) GetSession(ctx context.Context, sid string) (*Session, error) {
	data, err := c.rdb.Get(ctx, sessionKey(sid)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// DeleteSession removes the session record.
func (c *Client) DeleteSession(ctx context.Context, sid string) error {
	return c.rdb.Del(ctx, sessionKey(sid)).Err()
}
