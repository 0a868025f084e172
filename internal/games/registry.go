// Package games holds the process-wide game registry: live games in memory,
// snapshots written through to the cache, and rehydration after a restart.
package games

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roundtable-games/avalon-server/internal/avalon"
	"github.com/roundtable-games/avalon-server/internal/metrics"
)

// SnapshotStore is the cache surface the registry needs. Implemented by
// cache.Client.
type SnapshotStore interface {
	SaveGameState(ctx context.Context, gameID int64, snapshot json.RawMessage) error
	LoadGameState(ctx context.Context, gameID int64) (json.RawMessage, error)
	DeleteGameState(ctx context.Context, gameID int64, roomCode string) error
	SetRoomGame(ctx context.Context, code string, gameID int64) error
	GetRoomGame(ctx context.Context, code string) (int64, error)
}

// Registry maps game ids to live games. Memory is authoritative; the cache
// holds snapshots for crash recovery and a room to game id index so
// reconnecting clients can find their ongoing game.
type Registry struct {
	store   SnapshotStore
	log     zerolog.Logger
	newRand func() *rand.Rand

	mu    sync.RWMutex
	games map[int64]*avalon.Game
	rooms map[string]int64

	// locks serialise all mutations per game id. Held across the mutation and
	// its snapshot write so recipients observe transitions in a total order.
	locks sync.Map
}

// NewRegistry creates a registry backed by the given snapshot store.
func NewRegistry(store SnapshotStore, log zerolog.Logger) *Registry {
	return &Registry{
		store:   store,
		log:     log.With().Str("component", "games").Logger(),
		newRand: avalon.NewRand,
		games:   make(map[int64]*avalon.Game),
		rooms:   make(map[string]int64),
	}
}

// SetRandFactory overrides the rng source, for deterministic tests.
func (r *Registry) SetRandFactory(f func() *rand.Rand) { r.newRand = f }

func (r *Registry) lockFor(gameID int64) *sync.Mutex {
	v, _ := r.locks.LoadOrStore(gameID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create initialises a new game for the room, registers it, points the room
// at it, and writes the initial snapshot.
func (r *Registry) Create(ctx context.Context, gameID int64, roomID string, seats []avalon.Seat) (*avalon.Game, error) {
	mu := r.lockFor(gameID)
	mu.Lock()
	defer mu.Unlock()

	g, err := avalon.New(gameID, roomID, seats, r.newRand())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.games[gameID] = g
	r.rooms[roomID] = gameID
	metrics.GamesActive.Set(float64(len(r.games)))
	r.mu.Unlock()

	if err := r.store.SetRoomGame(ctx, roomID, gameID); err != nil {
		r.log.Warn().Err(err).Int64("game_id", gameID).Str("room_id", roomID).
			Msg("failed to index room game")
	}
	r.Persist(ctx, g)

	r.log.Info().Int64("game_id", gameID).Str("room_id", roomID).
		Int("players", len(seats)).Msg("game created")
	return g, nil
}

func (r *Registry) lookup(gameID int64) *avalon.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.games[gameID]
}

// Get returns the live game, rehydrating from the cache snapshot on a memory
// miss. Returns a not_found error when neither exists or the snapshot is
// inconsistent.
func (r *Registry) Get(ctx context.Context, gameID int64) (*avalon.Game, error) {
	if g := r.lookup(gameID); g != nil {
		return g, nil
	}

	raw, err := r.store.LoadGameState(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot for game %d: %w", gameID, err)
	}
	if raw == nil {
		return nil, avalon.ErrGameNotFound(gameID)
	}

	var snap avalon.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		r.log.Warn().Err(err).Int64("game_id", gameID).Msg("unreadable game snapshot")
		return nil, avalon.ErrGameNotFound(gameID)
	}
	g, err := avalon.Restore(snap, r.newRand())
	if err != nil {
		r.log.Warn().Err(err).Int64("game_id", gameID).Msg("rejected game snapshot")
		return nil, avalon.ErrGameNotFound(gameID)
	}

	r.mu.Lock()
	// Another handler may have restored it while we were reading the cache.
	if existing, ok := r.games[gameID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.games[gameID] = g
	r.rooms[g.RoomID()] = gameID
	metrics.GamesActive.Set(float64(len(r.games)))
	r.mu.Unlock()

	metrics.GamesRestored.Inc()
	r.log.Info().Int64("game_id", gameID).Str("room_id", g.RoomID()).
		Str("phase", string(g.Phase())).Msg("game restored from snapshot")
	return g, nil
}

func (r *Registry) roomGameID(ctx context.Context, roomID string) (int64, error) {
	r.mu.RLock()
	gameID, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return gameID, nil
	}

	gameID, err := r.store.GetRoomGame(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("room %s game index: %w", roomID, err)
	}
	if gameID == 0 {
		return 0, avalon.ErrRoomHasNoGame(roomID)
	}
	return gameID, nil
}

// GameForRoom returns the room's ongoing game, consulting the cache index on
// a memory miss.
func (r *Registry) GameForRoom(ctx context.Context, roomID string) (*avalon.Game, error) {
	gameID, err := r.roomGameID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, gameID)
}

// WithRoomGame resolves the room's ongoing game and runs fn under its mutex,
// like WithGame.
func (r *Registry) WithRoomGame(ctx context.Context, roomID string, fn func(*avalon.Game) error) error {
	gameID, err := r.roomGameID(ctx, roomID)
	if err != nil {
		return err
	}
	return r.WithGame(ctx, gameID, fn)
}

// WithGame runs fn under the game's mutex. No two handlers touching the same
// game id overlap; fn gets the live game and may mutate it.
func (r *Registry) WithGame(ctx context.Context, gameID int64, fn func(*avalon.Game) error) error {
	mu := r.lockFor(gameID)
	mu.Lock()
	defer mu.Unlock()

	g, err := r.Get(ctx, gameID)
	if err != nil {
		return err
	}
	return fn(g)
}

// Persist writes the game's snapshot to the cache. Failures are logged and
// counted; in-memory state stays authoritative and the next successful
// snapshot supersedes.
func (r *Registry) Persist(ctx context.Context, g *avalon.Game) {
	raw, err := json.Marshal(g.Snapshot())
	if err != nil {
		metrics.SnapshotFailures.Inc()
		r.log.Error().Err(err).Int64("game_id", g.GameID()).Msg("failed to marshal snapshot")
		return
	}
	if err := r.store.SaveGameState(ctx, g.GameID(), raw); err != nil {
		metrics.SnapshotFailures.Inc()
		r.log.Warn().Err(err).Int64("game_id", g.GameID()).Msg("failed to write snapshot")
	}
}

// Remove drops the game from memory and deletes its cache keys. Called after
// game_ended has been broadcast.
func (r *Registry) Remove(ctx context.Context, gameID int64, roomID string) {
	r.mu.Lock()
	delete(r.games, gameID)
	if r.rooms[roomID] == gameID {
		delete(r.rooms, roomID)
	}
	metrics.GamesActive.Set(float64(len(r.games)))
	r.mu.Unlock()
	r.locks.Delete(gameID)

	if err := r.store.DeleteGameState(ctx, gameID, roomID); err != nil {
		r.log.Warn().Err(err).Int64("game_id", gameID).Msg("failed to delete game cache keys")
	}
	r.log.Info().Int64("game_id", gameID).Str("room_id", roomID).Msg("game removed")
}
