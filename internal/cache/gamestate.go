package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// roomStateTTL bounds stale room metadata mirrors; the mirror is rewritten on
// every membership change while the room is active.
const roomStateTTL = time.Hour

func gameStateKey(gameID int64) string { return "game:" + strconv.FormatInt(gameID, 10) + ":state" }
func roomGameKey(code string) string   { return "room:" + code + ":game" }
func roomStateKey(code string) string  { return "room:" + code + ":state" }

// SaveGameState stores the serialised game snapshot. Snapshots have no TTL;
// they are deleted explicitly when the game ends.
func (c *Client) SaveGameState(ctx context.Context, gameID int64, snapshot json.RawMessage) error {
	return c.rdb.Set(ctx, gameStateKey(gameID), []byte(snapshot), 0).Err()
}

// LoadGameState retrieves the serialised game snapshot, or nil if absent.
func (c *Client) LoadGameState(ctx context.Context, gameID int64) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, gameStateKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load game %d state: %w", gameID, err)
	}
	return json.RawMessage(data), nil
}

// DeleteGameState removes the snapshot and the room's game pointer.
func (c *Client) DeleteGameState(ctx context.Context, gameID int64, roomCode string) error {
	return c.rdb.Del(ctx, gameStateKey(gameID), roomGameKey(roomCode)).Err()
}

// SetRoomGame points a room at its current game.
func (c *Client) SetRoomGame(ctx context.Context, code string, gameID int64) error {
	return c.rdb.Set(ctx, roomGameKey(code), gameID, 0).Err()
}

// GetRoomGame returns the room's current game id, or 0 if none.
func (c *Client) GetRoomGame(ctx context.Context, code string) (int64, error) {
	id, err := c.rdb.Get(ctx, roomGameKey(code)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("room %s game: %w", code, err)
	}
	return id, nil
}

// SaveRoomState mirrors room metadata JSON for reconnecting clients.
func (c *Client) SaveRoomState(ctx context.Context, code string, state json.RawMessage) error {
	return c.rdb.Set(ctx, roomStateKey(code), []byte(state), roomStateTTL).Err()
}

// LoadRoomState retrieves the room metadata mirror, or nil if expired.
func (c *Client) LoadRoomState(ctx context.Context, code string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, roomStateKey(code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s state: %w", code, err)
	}
	return json.RawMessage(data), nil
}
