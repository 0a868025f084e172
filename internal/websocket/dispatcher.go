package websocket

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/roundtable-games/avalon-server/internal/avalon"
	"github.com/roundtable-games/avalon-server/internal/cache"
	"github.com/roundtable-games/avalon-server/internal/metrics"
	"github.com/roundtable-games/avalon-server/internal/ratelimit"
	"github.com/roundtable-games/avalon-server/internal/store"
)

// Emitter is the fan-out surface: unicast, room broadcast, and per-user
// projected broadcast. Implemented by Hub.
type Emitter interface {
	Emit(sid string, event string, payload any)
	EmitRoom(roomID string, event string, payload any)
	EmitProjected(roomID string, event string, payloadFor func(userID int64) any)
}

// RoomBinder attaches and detaches clients from rooms. Implemented by Hub.
type RoomBinder interface {
	JoinRoom(c *Client, roomID string)
	LeaveRoom(c *Client)
	Register(c *Client)
	Unregister(c *Client)
}

// GameRegistry is the game lifecycle surface the dispatcher needs.
// Implemented by games.Registry.
type GameRegistry interface {
	Create(ctx context.Context, gameID int64, roomID string, seats []avalon.Seat) (*avalon.Game, error)
	WithGame(ctx context.Context, gameID int64, fn func(*avalon.Game) error) error
	WithRoomGame(ctx context.Context, roomID string, fn func(*avalon.Game) error) error
	GameForRoom(ctx context.Context, roomID string) (*avalon.Game, error)
	Persist(ctx context.Context, g *avalon.Game)
	Remove(ctx context.Context, gameID int64, roomID string)
}

// CacheStore is the cache surface the dispatcher needs. Implemented by
// cache.Client.
type CacheStore interface {
	SaveSession(ctx context.Context, s cache.Session) error
	DeleteSession(ctx context.Context, sid string) error
	JoinRoom(ctx context.Context, code string, userID int64, sessionID string) error
	LeaveRoom(ctx context.Context, code string, userID int64) error
	NextHost(ctx context.Context, code string, excluding int64) (int64, error)
	SaveRoomState(ctx context.Context, code string, state json.RawMessage) error
}

// RoomStore is the authoritative room record surface. Implemented by
// store.RoomStore.
type RoomStore interface {
	GetRoomByCode(ctx context.Context, code string) (*store.Room, error)
	UpdateRoomHost(ctx context.Context, code string, hostID int64) error
}

// Dispatcher routes inbound client events: resolves the sender's session,
// invokes the game engine under the registry's per-game lock, and fans results
// out. Engine errors go back to the caller only; state is never mutated on a
// rejected event.
type Dispatcher struct {
	log         zerolog.Logger
	emitter     Emitter
	binder      RoomBinder
	sessions    *SessionRegistry
	games       GameRegistry
	cache       CacheStore
	rooms       RoomStore
	chatLimiter ratelimit.Limiter
}

// NewDispatcher wires the dispatcher. chatLimiter may be ratelimit.Noop.
func NewDispatcher(
	emitter Emitter,
	binder RoomBinder,
	sessions *SessionRegistry,
	games GameRegistry,
	cacheStore CacheStore,
	rooms RoomStore,
	chatLimiter ratelimit.Limiter,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		log:         log.With().Str("component", "dispatcher").Logger(),
		emitter:     emitter,
		binder:      binder,
		sessions:    sessions,
		games:       games,
		cache:       cacheStore,
		rooms:       rooms,
		chatLimiter: chatLimiter,
	}
}

// Connect registers a fresh connection and greets it with its session id.
func (d *Dispatcher) Connect(ctx context.Context, c *Client) {
	d.binder.Register(c)
	d.sessions.Set(SessionInfo{SID: c.SID, UserID: c.UserIDHint, Username: c.UsernameHint, DisplayName: c.DisplayNameHint})
	if err := d.cache.SaveSession(ctx, cache.Session{SID: c.SID, UserID: c.UserIDHint, Username: c.UsernameHint, DisplayName: c.DisplayNameHint}); err != nil {
		d.log.Warn().Err(err).Str("sid", c.SID).Msg("failed to mirror session")
	}
	d.emitter.Emit(c.SID, EventConnected, map[string]any{"sid": c.SID})
	d.log.Info().Str("sid", c.SID).Msg("client connected")
}

// Disconnect tears a connection down: host succession and membership removal
// if the session was bound to a room, then registry cleanup.
func (d *Dispatcher) Disconnect(ctx context.Context, c *Client) {
	sess, ok := d.sessions.Get(c.SID)
	if ok && sess.RoomID != "" {
		d.departRoom(ctx, c, sess)
	}
	d.binder.Unregister(c)
	d.sessions.Delete(c.SID)
	if err := d.cache.DeleteSession(ctx, c.SID); err != nil {
		d.log.Warn().Err(err).Str("sid", c.SID).Msg("failed to delete session mirror")
	}
	d.log.Info().Str("sid", c.SID).Msg("client disconnected")
}

// Dispatch routes one inbound message.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, msg *ClientMessage) {
	if msg == nil || msg.Event == "" || len(msg.Event) > MaxEventNameLength {
		d.sendError(c, "", avalon.ErrValidation, "invalid event")
		return
	}
	metrics.EventsProcessed.WithLabelValues(msg.Event).Inc()

	switch msg.Event {
	case EventJoinRoom:
		d.handleJoinRoom(ctx, c, msg.Payload)
	case EventLeaveRoom:
		d.handleLeaveRoom(ctx, c, msg.Payload)
	case EventReadyToggle:
		d.handleReadyToggle(c, msg.Payload)
	case EventChatMessage:
		d.handleChat(c, msg.Payload)
	case EventGameAction:
		d.handleGameAction(c, msg.Payload)
	case EventStartGame:
		d.handleStartGame(ctx, c, msg.Payload)
	case EventProposeTeam:
		d.handleProposeTeam(ctx, c, msg.Payload)
	case EventVoteTeam:
		d.handleVoteTeam(ctx, c, msg.Payload)
	case EventVoteMission:
		d.handleVoteMission(ctx, c, msg.Payload)
	case EventAssassinate:
		d.handleAssassinate(ctx, c, msg.Payload)
	case EventGetGameState:
		d.handleGetGameState(ctx, c, msg.Payload)
	default:
		d.sendError(c, msg.Event, avalon.ErrValidation, "unsupported event")
	}
}

// decode unmarshals an inbound payload strictly; unknown fields are rejected
// so client protocol drift surfaces as an error instead of silent misreads.
func decode(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (d *Dispatcher) sendError(c *Client, event string, kind avalon.ErrorKind, message string) {
	if event != "" {
		metrics.EventErrors.WithLabelValues(event).Inc()
	}
	d.emitter.Emit(c.SID, EventError, map[string]any{"kind": string(kind), "message": message})
}

func (d *Dispatcher) sendEngineError(c *Client, event string, err error) {
	kind := avalon.KindOf(err)
	if kind == "" {
		d.log.Error().Err(err).Str("event", event).Str("sid", c.SID).Msg("internal error")
		d.sendError(c, event, avalon.ErrValidation, "internal error")
		return
	}
	d.sendError(c, event, kind, err.Error())
}

type joinRoomPayload struct {
	RoomID      string `json:"room_id"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

func (d *Dispatcher) handleJoinRoom(ctx context.Context, c *Client, raw json.RawMessage) {
	var p joinRoomPayload
	if err := decode(raw, &p); err != nil || p.RoomID == "" || p.UserID == 0 {
		d.sendError(c, EventJoinRoom, avalon.ErrValidation, "join_room requires room_id and user_id")
		return
	}

	sess, ok := d.sessions.Get(c.SID)
	if !ok {
		d.sendError(c, EventJoinRoom, avalon.ErrValidation, "unknown session")
		return
	}
	if sess.RoomID != "" && sess.RoomID != p.RoomID {
		d.departRoom(ctx, c, sess)
	}

	d.binder.JoinRoom(c, p.RoomID)
	sess.UserID = p.UserID
	sess.Username = p.Username
	sess.DisplayName = p.DisplayName
	sess.RoomID = p.RoomID
	d.sessions.Set(sess)

	if err := d.cache.JoinRoom(ctx, p.RoomID, p.UserID, c.SID); err != nil {
		d.log.Warn().Err(err).Str("room_id", p.RoomID).Int64("user_id", p.UserID).Msg("failed to persist membership")
	}
	if err := d.cache.SaveSession(ctx, cache.Session{
		SID: c.SID, UserID: p.UserID, Username: p.Username, DisplayName: p.DisplayName, RoomID: p.RoomID,
	}); err != nil {
		d.log.Warn().Err(err).Str("sid", c.SID).Msg("failed to mirror session")
	}

	d.emitter.EmitRoom(p.RoomID, EventUserJoined, map[string]any{
		"room_id":      p.RoomID,
		"user_id":      p.UserID,
		"username":     p.Username,
		"display_name": p.DisplayName,
	})
	d.emitter.Emit(c.SID, EventRoomUsers, map[string]any{
		"room_id": p.RoomID,
		"users":   d.roomUsers(p.RoomID),
	})
	d.mirrorRoomState(ctx, p.RoomID)

	d.log.Info().Str("room_id", p.RoomID).Int64("user_id", p.UserID).Str("sid", c.SID).Msg("user joined room")
}

type roomUser struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

func (d *Dispatcher) roomUsers(roomID string) []roomUser {
	sessions := d.sessions.InRoom(roomID)
	users := make([]roomUser, 0, len(sessions))
	for _, s := range sessions {
		users = append(users, roomUser{UserID: s.UserID, Username: s.Username, DisplayName: s.DisplayName})
	}
	return users
}

func (d *Dispatcher) mirrorRoomState(ctx context.Context, roomID string) {
	state, err := json.Marshal(map[string]any{"room_id": roomID, "users": d.roomUsers(roomID)})
	if err != nil {
		return
	}
	if err := d.cache.SaveRoomState(ctx, roomID, state); err != nil {
		d.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to mirror room state")
	}
}

type leaveRoomPayload struct {
	RoomID   string `json:"room_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

func (d *Dispatcher) handleLeaveRoom(ctx context.Context, c *Client, raw json.RawMessage) {
	var p leaveRoomPayload
	if err := decode(raw, &p); err != nil || p.RoomID == "" {
		d.sendError(c, EventLeaveRoom, avalon.ErrValidation, "leave_room requires room_id")
		return
	}
	sess, ok := d.sessions.Get(c.SID)
	if !ok || sess.RoomID != p.RoomID {
		d.sendError(c, EventLeaveRoom, avalon.ErrValidation, "not in that room")
		return
	}
	d.departRoom(ctx, c, sess)

	sess.RoomID = ""
	d.sessions.Set(sess)
	if err := d.cache.SaveSession(ctx, cache.Session{
		SID: c.SID, UserID: sess.UserID, Username: sess.Username, DisplayName: sess.DisplayName,
	}); err != nil {
		d.log.Warn().Err(err).Str("sid", c.SID).Msg("failed to mirror session")
	}
}

// departRoom runs the full leave sequence for the session's current room:
// host succession first, then membership removal, then the user_left
// broadcast. Succession must consult membership before the leaver is removed,
// so the order here matters.
func (d *Dispatcher) departRoom(ctx context.Context, c *Client, sess SessionInfo) {
	roomID := sess.RoomID

	room, err := d.rooms.GetRoomByCode(ctx, roomID)
	if err != nil {
		d.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to load room for departure")
	}
	if room != nil && room.HostID == sess.UserID {
		next, err := d.cache.NextHost(ctx, roomID, sess.UserID)
		if err != nil {
			d.log.Warn().Err(err).Str("room_id", roomID).Msg("failed to find next host")
		} else if next != 0 {
			if err := d.rooms.UpdateRoomHost(ctx, roomID, next); err != nil {
				d.log.Error().Err(err).Str("room_id", roomID).Int64("new_host_id", next).Msg("failed to update room host")
			} else {
				d.emitter.EmitRoom(roomID, EventHostChanged, map[string]any{
					"room_id":     roomID,
					"new_host_id": next,
				})
				d.log.Info().Str("room_id", roomID).Int64("old_host_id", sess.UserID).
					Int64("new_host_id", next).Msg("host changed")
			}
		}
	}

	if err := d.cache.LeaveRoom(ctx, roomID, sess.UserID); err != nil {
		d.log.Warn().Err(err).Str("room_id", roomID).Int64("user_id", sess.UserID).Msg("failed to remove membership")
	}
	d.binder.LeaveRoom(c)

	d.emitter.EmitRoom(roomID, EventUserLeft, map[string]any{
		"room_id":  roomID,
		"user_id":  sess.UserID,
		"username": sess.Username,
	})
	d.mirrorRoomState(ctx, roomID)
	d.log.Info().Str("room_id", roomID).Int64("user_id", sess.UserID).Msg("user left room")
}

type readyTogglePayload struct {
	Ready bool `json:"ready"`
}

func (d *Dispatcher) handleReadyToggle(c *Client, raw json.RawMessage) {
	sess, ok := d.sessions.Get(c.SID)
	if !ok || sess.RoomID == "" {
		d.sendError(c, EventReadyToggle, avalon.ErrValidation, "not in a room")
		return
	}
	var p readyTogglePayload
	if err := decode(raw, &p); err != nil {
		d.sendError(c, EventReadyToggle, avalon.ErrValidation, "malformed payload")
		return
	}
	d.emitter.EmitRoom(sess.RoomID, EventPlayerReady, map[string]any{
		"room_id": sess.RoomID,
		"user_id": sess.UserID,
		"ready":   p.Ready,
	})
}

type chatPayload struct {
	Message string `json:"message"`
}

func (d *Dispatcher) handleChat(c *Client, raw json.RawMessage) {
	sess, ok := d.sessions.Get(c.SID)
	if !ok || sess.RoomID == "" {
		d.sendError(c, EventChatMessage, avalon.ErrValidation, "not in a room")
		return
	}
	if d.chatLimiter != nil && c.RateLimitKey != "" {
		if allowed, _ := d.chatLimiter.Allow(c.RateLimitKey); !allowed {
			d.sendError(c, EventChatMessage, avalon.ErrValidation, "rate limit exceeded; try again later")
			return
		}
	}
	var p chatPayload
	if err := decode(raw, &p); err != nil {
		d.sendError(c, EventChatMessage, avalon.ErrValidation, "malformed payload")
		return
	}
	if len(p.Message) > MaxChatMessageLength {
		p.Message = p.Message[:MaxChatMessageLength]
	}
	if p.Message == "" {
		return
	}
	d.emitter.EmitRoom(sess.RoomID, EventChatMessage, map[string]any{
		"room_id":      sess.RoomID,
		"user_id":      sess.UserID,
		"username":     sess.Username,
		"display_name": sess.DisplayName,
		"message":      p.Message,
	})
}

func (d *Dispatcher) handleGameAction(c *Client, raw json.RawMessage) {
	sess, ok := d.sessions.Get(c.SID)
	if !ok || sess.RoomID == "" {
		d.sendError(c, EventGameAction, avalon.ErrValidation, "not in a room")
		return
	}
	d.emitter.EmitRoom(sess.RoomID, EventGameAction, map[string]any{
		"room_id": sess.RoomID,
		"user_id": sess.UserID,
		"action":  raw,
	})
}

type startGamePayload struct {
	RoomID   string `json:"room_id"`
	GameType string `json:"game_type"`
	GameID   int64  `json:"game_id"`
}

func (d *Dispatcher) handleStartGame(ctx context.Context, c *Client, raw json.RawMessage) {
	var p startGamePayload
	if err := decode(raw, &p); err != nil || p.RoomID == "" {
		d.sendError(c, EventStartGame, avalon.ErrValidation, "start_game requires room_id")
		return
	}
	sess, ok := d.sessions.Get(c.SID)
	if !ok || sess.RoomID != p.RoomID {
		d.sendError(c, EventStartGame, avalon.ErrUnauthorized, "not in that room")
		return
	}

	if p.GameType != "avalon" {
		// Other game types are announced but not hosted here.
		d.emitter.EmitRoom(p.RoomID, EventGameStarted, map[string]any{
			"room_id":   p.RoomID,
			"game_type": p.GameType,
			"game_id":   p.GameID,
		})
		return
	}
	if p.GameID == 0 {
		d.sendError(c, EventStartGame, avalon.ErrValidation, "start_game requires game_id")
		return
	}

	members := d.sessions.InRoom(p.RoomID)
	if len(members) < avalon.MinPlayers {
		d.sendError(c, EventStartGame, avalon.ErrCapacity, MsgTooFewPlayers)
		return
	}
	if len(members) > avalon.MaxPlayers {
		d.sendError(c, EventStartGame, avalon.ErrCapacity, MsgTooManyPlayers)
		return
	}
	seats := make([]avalon.Seat, len(members))
	for i, m := range members {
		seats[i] = avalon.Seat{UserID: m.UserID, Username: m.Username, DisplayName: m.DisplayName}
	}

	created, err := d.games.Create(ctx, p.GameID, p.RoomID, seats)
	if err != nil {
		d.sendEngineError(c, EventStartGame, err)
		return
	}

	// Fan-out runs under the game lock; a vote racing the start broadcast
	// must not mutate the state while it is being projected.
	err = d.games.WithGame(ctx, created.GameID(), func(g *avalon.Game) error {
		d.emitter.EmitRoom(p.RoomID, EventGameStarted, map[string]any{
			"room_id":   p.RoomID,
			"game_type": "avalon",
			"game_id":   g.GameID(),
			"state":     g.Public(),
		})
		for _, m := range members {
			view := g.View(m.UserID)
			d.emitter.Emit(m.SID, EventRoleAssigned, map[string]any{
				"game_id":    g.GameID(),
				"role":       view.MyRole,
				"team":       view.MyTeam,
				"known_info": view.KnownInfo,
			})
		}
		d.emitProjectedState(g)
		return nil
	})
	if err != nil {
		d.sendEngineError(c, EventStartGame, err)
	}
}

// withSenderGame resolves the sender's session, locks the game, cross-checks
// that the sender's room matches the game's room, and runs fn.
func (d *Dispatcher) withSenderGame(ctx context.Context, c *Client, event string, gameID int64, fn func(g *avalon.Game, sess SessionInfo) error) {
	sess, ok := d.sessions.Get(c.SID)
	if !ok || sess.UserID == 0 {
		d.sendError(c, event, avalon.ErrValidation, "unknown session")
		return
	}
	err := d.games.WithGame(ctx, gameID, func(g *avalon.Game) error {
		if g.RoomID() != sess.RoomID {
			return avalon.ErrRoomHasNoGame(sess.RoomID)
		}
		return fn(g, sess)
	})
	if err != nil {
		d.sendEngineError(c, event, err)
	}
}

type proposeTeamPayload struct {
	GameID      int64   `json:"game_id"`
	TeamMembers []int64 `json:"team_members"`
}

func (d *Dispatcher) handleProposeTeam(ctx context.Context, c *Client, raw json.RawMessage) {
	var p proposeTeamPayload
	if err := decode(raw, &p); err != nil || p.GameID == 0 {
		d.sendError(c, EventProposeTeam, avalon.ErrValidation, "propose_team requires game_id and team_members")
		return
	}
	d.withSenderGame(ctx, c, EventProposeTeam, p.GameID, func(g *avalon.Game, sess SessionInfo) error {
		res, err := g.ProposeTeam(sess.UserID, p.TeamMembers)
		if err != nil {
			return err
		}
		d.games.Persist(ctx, g)
		d.emitter.EmitRoom(g.RoomID(), EventTeamProposed, map[string]any{
			"game_id":      g.GameID(),
			"leader_id":    res.LeaderID,
			"team_members": res.ProposedTeam,
			"phase":        res.Phase,
		})
		d.emitProjectedState(g)
		return nil
	})
}

type voteTeamPayload struct {
	GameID  int64 `json:"game_id"`
	Approve bool  `json:"approve"`
}

func (d *Dispatcher) handleVoteTeam(ctx context.Context, c *Client, raw json.RawMessage) {
	var p voteTeamPayload
	if err := decode(raw, &p); err != nil || p.GameID == 0 {
		d.sendError(c, EventVoteTeam, avalon.ErrValidation, "vote_team requires game_id and approve")
		return
	}
	d.withSenderGame(ctx, c, EventVoteTeam, p.GameID, func(g *avalon.Game, sess SessionInfo) error {
		res, err := g.VoteTeam(sess.UserID, p.Approve)
		if err != nil {
			return err
		}
		if !res.Complete {
			// Counts only; individual votes stay hidden until resolution.
			d.emitter.EmitRoom(g.RoomID(), EventTeamVoteUpdate, map[string]any{
				"game_id":       g.GameID(),
				"votes_cast":    res.VotesCast,
				"total_players": res.TotalPlayers,
			})
			return nil
		}

		d.games.Persist(ctx, g)
		result := map[string]any{
			"game_id":       g.GameID(),
			"approved":      res.Approved,
			"approve_count": res.ApproveCount,
			"reject_count":  res.RejectCount,
			"votes":         res.Votes,
			"vote_track":    res.VoteTrack,
			"phase":         res.Phase,
		}
		if res.NewLeaderID != 0 {
			result["new_leader_id"] = res.NewLeaderID
		}
		d.emitter.EmitRoom(g.RoomID(), EventTeamVoteResult, result)

		if res.GameOver {
			d.finishGame(ctx, g)
			return nil
		}
		d.emitProjectedState(g)
		return nil
	})
}

type voteMissionPayload struct {
	GameID  int64 `json:"game_id"`
	Success bool  `json:"success"`
}

func (d *Dispatcher) handleVoteMission(ctx context.Context, c *Client, raw json.RawMessage) {
	var p voteMissionPayload
	if err := decode(raw, &p); err != nil || p.GameID == 0 {
		d.sendError(c, EventVoteMission, avalon.ErrValidation, "vote_mission requires game_id and success")
		return
	}
	d.withSenderGame(ctx, c, EventVoteMission, p.GameID, func(g *avalon.Game, sess SessionInfo) error {
		res, err := g.VoteMission(sess.UserID, p.Success)
		if err != nil {
			return err
		}
		if !res.Complete {
			d.emitter.EmitRoom(g.RoomID(), EventMissionVoteUpdate, map[string]any{
				"game_id":    g.GameID(),
				"votes_cast": res.VotesCast,
				"team_size":  res.TeamSize,
			})
			return nil
		}

		d.games.Persist(ctx, g)
		result := map[string]any{
			"game_id":          g.GameID(),
			"round":            res.Round,
			"result":           res.Result,
			"fail_votes":       res.FailVotes,
			"fail_requirement": res.FailRequirement,
			"success_total":    res.SuccessTotal,
			"fail_total":       res.FailTotal,
			"mission_votes":    res.ShuffledVotes,
			"phase":            res.Phase,
		}
		if res.NextRound != 0 {
			result["next_round"] = res.NextRound
			result["new_leader_id"] = res.NewLeaderID
		}
		d.emitter.EmitRoom(g.RoomID(), EventMissionResult, result)

		if res.GameOver {
			d.finishGame(ctx, g)
			return nil
		}
		d.emitProjectedState(g)
		return nil
	})
}

type assassinatePayload struct {
	GameID   int64 `json:"game_id"`
	TargetID int64 `json:"target_id"`
}

func (d *Dispatcher) handleAssassinate(ctx context.Context, c *Client, raw json.RawMessage) {
	var p assassinatePayload
	if err := decode(raw, &p); err != nil || p.GameID == 0 || p.TargetID == 0 {
		d.sendError(c, EventAssassinate, avalon.ErrValidation, "assassinate requires game_id and target_id")
		return
	}
	d.withSenderGame(ctx, c, EventAssassinate, p.GameID, func(g *avalon.Game, sess SessionInfo) error {
		res, err := g.Assassinate(sess.UserID, p.TargetID)
		if err != nil {
			return err
		}
		d.games.Persist(ctx, g)
		d.emitter.EmitRoom(g.RoomID(), EventAssassinationResult, map[string]any{
			"game_id":       g.GameID(),
			"target_id":     res.TargetID,
			"merlin_killed": res.MerlinKilled,
		})
		d.finishGame(ctx, g)
		return nil
	})
}

type getGameStatePayload struct {
	GameID int64 `json:"game_id"`
}

func (d *Dispatcher) handleGetGameState(ctx context.Context, c *Client, raw json.RawMessage) {
	var p getGameStatePayload
	if len(raw) > 0 {
		if err := decode(raw, &p); err != nil {
			d.sendError(c, EventGetGameState, avalon.ErrValidation, "malformed payload")
			return
		}
	}
	sess, ok := d.sessions.Get(c.SID)
	if !ok {
		d.sendError(c, EventGetGameState, avalon.ErrValidation, "unknown session")
		return
	}

	// The view is built under the game lock so it never observes a vote or
	// phase change mid-write; the copy is emitted after.
	var view avalon.PlayerView
	capture := func(g *avalon.Game) error {
		view = g.View(sess.UserID)
		return nil
	}
	var err error
	switch {
	case p.GameID != 0:
		err = d.games.WithGame(ctx, p.GameID, capture)
	case sess.RoomID != "":
		err = d.games.WithRoomGame(ctx, sess.RoomID, capture)
	default:
		d.sendError(c, EventGetGameState, avalon.ErrValidation, "get_game_state requires game_id")
		return
	}
	if err != nil {
		d.sendEngineError(c, EventGetGameState, err)
		return
	}
	d.emitter.Emit(c.SID, EventGameStateUpdate, view)
}

func (d *Dispatcher) emitProjectedState(g *avalon.Game) {
	d.emitter.EmitProjected(g.RoomID(), EventGameStateUpdate, func(userID int64) any {
		return g.View(userID)
	})
}

type gameEndedPayload struct {
	GameID int64 `json:"game_id"`
	*avalon.FinalResult
}

// finishGame broadcasts game_ended with roles revealed, then drops the game
// from the registry and the cache.
func (d *Dispatcher) finishGame(ctx context.Context, g *avalon.Game) {
	final, err := g.Result()
	if err != nil {
		d.log.Error().Err(err).Int64("game_id", g.GameID()).Msg("finishGame on unfinished game")
		return
	}
	d.emitter.EmitRoom(g.RoomID(), EventGameEnded, gameEndedPayload{GameID: g.GameID(), FinalResult: final})
	d.games.Remove(ctx, g.GameID(), g.RoomID())
	d.log.Info().Int64("game_id", g.GameID()).Str("room_id", g.RoomID()).
		Str("winner", string(final.WinnerTeam)).Str("reason", final.Reason).Msg("game ended")
}
