// Package store holds the authoritative Postgres records. The only record
// this server owns is the room row; the surrounding platform manages users.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Room is the authoritative room record. HostID drives host succession; the
// rest of the room's live state lives in the cache.
type Room struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	HostID    int64     `json:"host_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrRoomNotFound is returned when no room matches the given code.
var ErrRoomNotFound = errors.New("room not found")

// RoomStore handles database operations for rooms.
type RoomStore struct {
	pool *pgxpool.Pool
}

// NewRoomStore creates a new RoomStore.
func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

// CreateRoom inserts a room with the given code and initial host.
func (s *RoomStore) CreateRoom(ctx context.Context, code string, hostID int64) (*Room, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (code, host_id)
		VALUES ($1, $2)
		RETURNING id, code, host_id, created_at, updated_at`,
		code, hostID)
	var r Room
	if err := row.Scan(&r.ID, &r.Code, &r.HostID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create room %s: %w", code, err)
	}
	return &r, nil
}

// GetRoomByCode returns the room with the given code, or ErrRoomNotFound.
func (s *RoomStore) GetRoomByCode(ctx context.Context, code string) (*Room, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, code, host_id, created_at, updated_at
		FROM rooms
		WHERE code = $1`,
		code)
	var r Room
	if err := row.Scan(&r.ID, &r.Code, &r.HostID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room %s: %w", code, err)
	}
	return &r, nil
}

// UpdateRoomHost transfers the room to a new host.
func (s *RoomStore) UpdateRoomHost(ctx context.Context, code string, hostID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rooms
		SET host_id = $2, updated_at = now()
		WHERE code = $1`,
		code, hostID)
	if err != nil {
		return fmt.Errorf("update room %s host: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// DeleteRoom removes the room record.
func (s *RoomStore) DeleteRoom(ctx context.Context, code string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE code = $1`, code); err != nil {
		return fmt.Errorf("delete room %s: %w", code, err)
	}
	return nil
}
