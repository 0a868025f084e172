package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Room membership lives in two structures per room: a hash mapping user id to
// the session id currently representing that user, and a sorted set of user
// ids scored by join time. The sorted set drives host succession: the earliest
// remaining joiner inherits the room.

func roomUsersKey(code string) string { return "room:" + code + ":users" }
func roomOrderKey(code string) string { return "room:" + code + ":order" }

// JoinRoom records a user's membership. Rejoining rebinds the session id and
// refreshes the join-time score, so seniority always reflects the latest join.
func (c *Client) JoinRoom(ctx context.Context, code string, userID int64, sessionID string) error {
	field := strconv.FormatInt(userID, 10)
	if err := c.rdb.HSet(ctx, roomUsersKey(code), field, sessionID).Err(); err != nil {
		return fmt.Errorf("join room %s: %w", code, err)
	}
	score := float64(time.Now().UnixNano())
	if err := c.rdb.ZAdd(ctx, roomOrderKey(code), redis.Z{Score: score, Member: field}).Err(); err != nil {
		return fmt.Errorf("join room %s order: %w", code, err)
	}
	return nil
}

// LeaveRoom removes a user from both membership structures.
func (c *Client) LeaveRoom(ctx context.Context, code string, userID int64) error {
	field := strconv.FormatInt(userID, 10)
	if err := c.rdb.HDel(ctx, roomUsersKey(code), field).Err(); err != nil {
		return fmt.Errorf("leave room %s: %w", code, err)
	}
	if err := c.rdb.ZRem(ctx, roomOrderKey(code), field).Err(); err != nil {
		return fmt.Errorf("leave room %s order: %w", code, err)
	}
	return nil
}

// RoomMembers returns the user ids in the room in join order.
func (c *Client) RoomMembers(ctx context.Context, code string) ([]int64, error) {
	members, err := c.rdb.ZRange(ctx, roomOrderKey(code), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("room %s members: %w", code, err)
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("room %s has malformed member %q", code, m)
		}
		out = append(out, id)
	}
	return out, nil
}

// RoomSessionID returns the session id currently bound to a user in the room,
// or "" if the user is not a member.
func (c *Client) RoomSessionID(ctx context.Context, code string, userID int64) (string, error) {
	sid, err := c.rdb.HGet(ctx, roomUsersKey(code), strconv.FormatInt(userID, 10)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("room %s session for %d: %w", code, userID, err)
	}
	return sid, nil
}

// NextHost returns the earliest joiner other than the excluded user, or 0 if
// the room has no other members.
func (c *Client) NextHost(ctx context.Context, code string, excluding int64) (int64, error) {
	members, err := c.RoomMembers(ctx, code)
	if err != nil {
		return 0, err
	}
	for _, id := range members {
		if id != excluding {
			return id, nil
		}
	}
	return 0, nil
}

// ClearRoom removes every key for the room.
func (c *Client) ClearRoom(ctx context.Context, code string) error {
	keys := []string{roomUsersKey(code), roomOrderKey(code), roomStateKey(code), roomGameKey(code)}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear room %s: %w", code, err)
	}
	return nil
}
