package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roundtable-games/avalon-server/internal/avalon"
	"github.com/roundtable-games/avalon-server/internal/cache"
	"github.com/roundtable-games/avalon-server/internal/games"
	"github.com/roundtable-games/avalon-server/internal/ratelimit"
	"github.com/roundtable-games/avalon-server/internal/store"
)

// fakeCache is an in-memory CacheStore.
type fakeCache struct {
	mu       sync.Mutex
	sessions map[string]cache.Session
	members  map[string][]int64
	states   map[string]json.RawMessage
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		sessions: make(map[string]cache.Session),
		members:  make(map[string][]int64),
		states:   make(map[string]json.RawMessage),
	}
}

func (f *fakeCache) SaveSession(_ context.Context, s cache.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.SID] = s
	return nil
}

func (f *fakeCache) DeleteSession(_ context.Context, sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sid)
	return nil
}

// JoinRoom mirrors the sorted-set semantics: a re-join refreshes the user's
// join-time score, moving them to the back of the order.
func (f *fakeCache) JoinRoom(_ context.Context, code string, userID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range f.members[code] {
		if id == userID {
			f.members[code] = append(f.members[code][:i], f.members[code][i+1:]...)
			break
		}
	}
	f.members[code] = append(f.members[code], userID)
	return nil
}

func (f *fakeCache) LeaveRoom(_ context.Context, code string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range f.members[code] {
		if id == userID {
			f.members[code] = append(f.members[code][:i], f.members[code][i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeCache) NextHost(_ context.Context, code string, excluding int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.members[code] {
		if id != excluding {
			return id, nil
		}
	}
	return 0, nil
}

func (f *fakeCache) SaveRoomState(_ context.Context, code string, state json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[code] = state
	return nil
}

// fakeRooms is an in-memory RoomStore.
type fakeRooms struct {
	mu    sync.Mutex
	rooms map[string]*store.Room
}

func (f *fakeRooms) GetRoomByCode(_ context.Context, code string) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[code]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRooms) UpdateRoomHost(_ context.Context, code string, hostID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[code]
	if !ok {
		return store.ErrRoomNotFound
	}
	r.HostID = hostID
	return nil
}

// fakeSnapshots backs the real game registry in dispatcher tests.
type fakeSnapshots struct {
	mu        sync.Mutex
	snapshots map[int64]json.RawMessage
	roomGames map[string]int64
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{snapshots: make(map[int64]json.RawMessage), roomGames: make(map[string]int64)}
}

func (f *fakeSnapshots) SaveGameState(_ context.Context, gameID int64, snap json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[gameID] = append(json.RawMessage(nil), snap...)
	return nil
}

func (f *fakeSnapshots) LoadGameState(_ context.Context, gameID int64) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[gameID], nil
}

func (f *fakeSnapshots) DeleteGameState(_ context.Context, gameID int64, roomCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snapshots, gameID)
	delete(f.roomGames, roomCode)
	return nil
}

func (f *fakeSnapshots) SetRoomGame(_ context.Context, code string, gameID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomGames[code] = gameID
	return nil
}

func (f *fakeSnapshots) GetRoomGame(_ context.Context, code string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roomGames[code], nil
}

type env struct {
	t        *testing.T
	ctx      context.Context
	sessions *SessionRegistry
	hub      *Hub
	cache    *fakeCache
	rooms    *fakeRooms
	snaps    *fakeSnapshots
	registry *games.Registry
	d        *Dispatcher
	clients  map[int64]*Client
}

func newEnv(t *testing.T) *env {
	sessions := NewSessionRegistry()
	hub := NewHub(sessions, zerolog.Nop())
	fc := newFakeCache()
	fr := &fakeRooms{rooms: make(map[string]*store.Room)}
	fs := newFakeSnapshots()
	reg := games.NewRegistry(fs, zerolog.Nop())
	reg.SetRandFactory(func() *rand.Rand { return rand.New(rand.NewSource(7)) })
	d := NewDispatcher(hub, hub, sessions, reg, fc, fr, ratelimit.Noop{}, zerolog.Nop())
	return &env{
		t:        t,
		ctx:      context.Background(),
		sessions: sessions,
		hub:      hub,
		cache:    fc,
		rooms:    fr,
		snaps:    fs,
		registry: reg,
		d:        d,
		clients:  make(map[int64]*Client),
	}
}

func (e *env) connect(sid string) *Client {
	c := &Client{SID: sid, send: make(chan *ServerMessage, 256)}
	e.d.Connect(e.ctx, c)
	return c
}

func (e *env) dispatch(c *Client, event string, payload any) {
	e.t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		e.t.Fatalf("marshal payload: %v", err)
	}
	e.d.Dispatch(e.ctx, c, &ClientMessage{Event: event, Payload: raw})
}

// joinN connects users 1..n and joins them all to room.
func (e *env) joinN(room string, n int) {
	e.t.Helper()
	for i := 1; i <= n; i++ {
		uid := int64(i)
		c := e.connect(fmt.Sprintf("sid-%d", uid))
		e.dispatch(c, EventJoinRoom, map[string]any{
			"room_id":      room,
			"user_id":      uid,
			"username":     fmt.Sprintf("user%d", uid),
			"display_name": fmt.Sprintf("User %d", uid),
		})
		e.clients[uid] = c
	}
	for _, c := range e.clients {
		drain(c)
	}
}

func payloadMap(t *testing.T, msg *ServerMessage) map[string]any {
	t.Helper()
	m, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload is %T, want map", msg.Payload)
	}
	return m
}

func findEvent(msgs []*ServerMessage, event string) *ServerMessage {
	for _, m := range msgs {
		if m.Event == event {
			return m
		}
	}
	return nil
}

func TestConnectGreetsWithSID(t *testing.T) {
	e := newEnv(t)
	c := e.connect("sid-x")
	msgs := drain(c)
	if len(msgs) != 1 || msgs[0].Event != EventConnected {
		t.Fatalf("got %+v, want connected", msgs)
	}
	if payloadMap(t, msgs[0])["sid"] != "sid-x" {
		t.Errorf("greeting payload %+v", msgs[0].Payload)
	}
	if e.cache.sessions["sid-x"].SID != "sid-x" {
		t.Error("session not mirrored to cache")
	}
}

func TestJoinRoomFlow(t *testing.T) {
	e := newEnv(t)
	a := e.connect("sid-a")
	e.dispatch(a, EventJoinRoom, map[string]any{
		"room_id": "ROOM1", "user_id": 1, "username": "alice", "display_name": "Alice",
	})
	drain(a)

	b := e.connect("sid-b")
	drain(b)
	e.dispatch(b, EventJoinRoom, map[string]any{
		"room_id": "ROOM1", "user_id": 2, "username": "bob", "display_name": "Bob",
	})

	// Existing member sees the join.
	joined := findEvent(drain(a), EventUserJoined)
	if joined == nil {
		t.Fatal("no user_joined broadcast")
	}
	if p := payloadMap(t, joined); p["user_id"] != int64(2) || p["username"] != "bob" {
		t.Errorf("user_joined payload %+v", p)
	}

	// Joiner gets the deduplicated roster.
	bMsgs := drain(b)
	roster := findEvent(bMsgs, EventRoomUsers)
	if roster == nil {
		t.Fatal("no room_users reply")
	}
	users := payloadMap(t, roster)["users"].([]roomUser)
	if len(users) != 2 || users[0].UserID != 1 || users[1].UserID != 2 {
		t.Errorf("roster %+v", users)
	}

	if got := e.cache.members["ROOM1"]; len(got) != 2 {
		t.Errorf("membership %v", got)
	}
	if e.cache.states["ROOM1"] == nil {
		t.Error("room state mirror not written")
	}
}

func TestJoinRoomRejectsMissingFields(t *testing.T) {
	e := newEnv(t)
	c := e.connect("sid-a")
	drain(c)
	e.dispatch(c, EventJoinRoom, map[string]any{"room_id": "ROOM1"})
	msgs := drain(c)
	if len(msgs) != 1 || msgs[0].Event != EventError {
		t.Fatalf("got %+v, want error", msgs)
	}
}

func TestLeaveRoomHostSuccession(t *testing.T) {
	e := newEnv(t)
	e.rooms.rooms["ROOM1"] = &store.Room{ID: "r1", Code: "ROOM1", HostID: 1}
	e.joinN("ROOM1", 3)

	e.dispatch(e.clients[1], EventLeaveRoom, map[string]any{
		"room_id": "ROOM1", "user_id": 1, "username": "user1",
	})

	msgs := drain(e.clients[2])
	hostChanged := findEvent(msgs, EventHostChanged)
	if hostChanged == nil {
		t.Fatal("no host_changed broadcast")
	}
	if p := payloadMap(t, hostChanged); p["new_host_id"] != int64(2) {
		t.Errorf("host_changed payload %+v", p)
	}
	if findEvent(msgs, EventUserLeft) == nil {
		t.Fatal("no user_left broadcast")
	}
	// host_changed is announced before user_left.
	for i, m := range msgs {
		if m.Event == EventUserLeft {
			for _, later := range msgs[i:] {
				if later.Event == EventHostChanged {
					t.Fatal("host_changed after user_left")
				}
			}
		}
	}
	if e.rooms.rooms["ROOM1"].HostID != 2 {
		t.Errorf("room host %d, want 2", e.rooms.rooms["ROOM1"].HostID)
	}
	if got := e.cache.members["ROOM1"]; len(got) != 2 || got[0] != 2 {
		t.Errorf("membership after leave %v", got)
	}
}

func TestRejoinResetsSeniority(t *testing.T) {
	e := newEnv(t)
	e.rooms.rooms["ROOM1"] = &store.Room{ID: "r1", Code: "ROOM1", HostID: 1}
	e.joinN("ROOM1", 3)

	// User 2 re-sends join_room, dropping behind user 3 in join order.
	e.dispatch(e.clients[2], EventJoinRoom, map[string]any{
		"room_id": "ROOM1", "user_id": 2, "username": "user2", "display_name": "User 2",
	})
	for _, c := range e.clients {
		drain(c)
	}

	e.dispatch(e.clients[1], EventLeaveRoom, map[string]any{
		"room_id": "ROOM1", "user_id": 1, "username": "user1",
	})
	hostChanged := findEvent(drain(e.clients[3]), EventHostChanged)
	if hostChanged == nil {
		t.Fatal("no host_changed broadcast")
	}
	if p := payloadMap(t, hostChanged); p["new_host_id"] != int64(3) {
		t.Errorf("host_changed payload %+v", p)
	}
	if e.rooms.rooms["ROOM1"].HostID != 3 {
		t.Errorf("room host %d, want 3", e.rooms.rooms["ROOM1"].HostID)
	}
}

func TestLeaveRoomNonHostNoSuccession(t *testing.T) {
	e := newEnv(t)
	e.rooms.rooms["ROOM1"] = &store.Room{ID: "r1", Code: "ROOM1", HostID: 1}
	e.joinN("ROOM1", 3)

	e.dispatch(e.clients[3], EventLeaveRoom, map[string]any{
		"room_id": "ROOM1", "user_id": 3, "username": "user3",
	})
	msgs := drain(e.clients[1])
	if findEvent(msgs, EventHostChanged) != nil {
		t.Fatal("host_changed for non-host leaver")
	}
	if findEvent(msgs, EventUserLeft) == nil {
		t.Fatal("no user_left broadcast")
	}
	if e.rooms.rooms["ROOM1"].HostID != 1 {
		t.Error("host changed unexpectedly")
	}
}

func TestDisconnectRunsDeparture(t *testing.T) {
	e := newEnv(t)
	e.rooms.rooms["ROOM1"] = &store.Room{ID: "r1", Code: "ROOM1", HostID: 1}
	e.joinN("ROOM1", 2)

	e.d.Disconnect(e.ctx, e.clients[1])

	msgs := drain(e.clients[2])
	if findEvent(msgs, EventHostChanged) == nil || findEvent(msgs, EventUserLeft) == nil {
		t.Fatalf("disconnect departure events: %+v", msgs)
	}
	if _, ok := e.sessions.Get("sid-1"); ok {
		t.Error("session survived disconnect")
	}
	if _, ok := e.cache.sessions["sid-1"]; ok {
		t.Error("cache session survived disconnect")
	}
}

func TestChatAndReady(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 2)

	e.dispatch(e.clients[1], EventChatMessage, map[string]any{"message": "hello knights"})
	chat := findEvent(drain(e.clients[2]), EventChatMessage)
	if chat == nil {
		t.Fatal("no chat broadcast")
	}
	p := payloadMap(t, chat)
	if p["message"] != "hello knights" || p["user_id"] != int64(1) || p["display_name"] != "User 1" {
		t.Errorf("chat payload %+v", p)
	}

	e.dispatch(e.clients[2], EventReadyToggle, map[string]any{"ready": true})
	ready := findEvent(drain(e.clients[1]), EventPlayerReady)
	if ready == nil {
		t.Fatal("no player_ready broadcast")
	}
	if p := payloadMap(t, ready); p["user_id"] != int64(2) || p["ready"] != true {
		t.Errorf("player_ready payload %+v", p)
	}
}

func TestChatRateLimited(t *testing.T) {
	e := newEnv(t)
	e.d.chatLimiter = ratelimit.NewInMemory(1, time.Minute)
	e.joinN("ROOM1", 2)
	e.clients[1].RateLimitKey = "ip1"

	e.dispatch(e.clients[1], EventChatMessage, map[string]any{"message": "one"})
	e.dispatch(e.clients[1], EventChatMessage, map[string]any{"message": "two"})

	if findEvent(drain(e.clients[1]), EventError) == nil {
		t.Fatal("second chat message was not limited")
	}
	msgs := drain(e.clients[2])
	count := 0
	for _, m := range msgs {
		if m.Event == EventChatMessage {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("room saw %d chat messages, want 1", count)
	}
}

func TestStartGamePlayerCountErrors(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 4)
	e.dispatch(e.clients[1], EventStartGame, map[string]any{
		"room_id": "ROOM1", "game_type": "avalon", "game_id": 100,
	})
	errMsg := findEvent(drain(e.clients[1]), EventError)
	if errMsg == nil {
		t.Fatal("no error for 4 players")
	}
	if payloadMap(t, errMsg)["message"] != MsgTooFewPlayers {
		t.Errorf("error message %+v", errMsg.Payload)
	}
	for uid := int64(2); uid <= 4; uid++ {
		if findEvent(drain(e.clients[uid]), EventError) != nil {
			t.Error("error leaked to other clients")
		}
	}
}

func TestStartGamePassthroughForOtherTypes(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 2)
	e.dispatch(e.clients[1], EventStartGame, map[string]any{
		"room_id": "ROOM1", "game_type": "codenames", "game_id": 5,
	})
	started := findEvent(drain(e.clients[2]), EventGameStarted)
	if started == nil {
		t.Fatal("no passthrough game_started")
	}
	if p := payloadMap(t, started); p["game_type"] != "codenames" {
		t.Errorf("payload %+v", p)
	}
	if _, err := e.registry.GameForRoom(e.ctx, "ROOM1"); avalon.KindOf(err) != avalon.ErrNotFound {
		t.Error("non-avalon start must not create a game")
	}
}

// startAvalon starts a 5-player game and returns the role each user drew.
func (e *env) startAvalon(room string, gameID int64) map[int64]avalon.Role {
	e.t.Helper()
	e.dispatch(e.clients[1], EventStartGame, map[string]any{
		"room_id": room, "game_type": "avalon", "game_id": gameID,
	})
	roles := make(map[int64]avalon.Role)
	for uid, c := range e.clients {
		msgs := drain(c)
		if findEvent(msgs, EventGameStarted) == nil {
			e.t.Fatalf("user %d missed game_started", uid)
		}
		assigned := findEvent(msgs, EventRoleAssigned)
		if assigned == nil {
			e.t.Fatalf("user %d missed role_assigned", uid)
		}
		roles[uid] = payloadMap(e.t, assigned)["role"].(avalon.Role)
		view := findEvent(msgs, EventGameStateUpdate)
		if view == nil {
			e.t.Fatalf("user %d missed game_state_update", uid)
		}
		pv := view.Payload.(avalon.PlayerView)
		if pv.MyRole != roles[uid] {
			e.t.Fatalf("user %d view role %s, assigned %s", uid, pv.MyRole, roles[uid])
		}
	}
	return roles
}

// leaderOf reads the current leader from a fresh projected state.
func (e *env) leaderOf(gameID int64) int64 {
	e.t.Helper()
	drain(e.clients[1])
	e.dispatch(e.clients[1], EventGetGameState, map[string]any{"game_id": gameID})
	view := findEvent(drain(e.clients[1]), EventGameStateUpdate)
	if view == nil {
		e.t.Fatal("no game_state_update reply")
	}
	return view.Payload.(avalon.PlayerView).CurrentLeaderID
}

func TestStartGameDealsHiddenRoles(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 5)
	roles := e.startAvalon("ROOM1", 100)

	counts := make(map[avalon.Role]int)
	for _, r := range roles {
		counts[r]++
	}
	if counts[avalon.RoleMerlin] != 1 || counts[avalon.RoleAssassin] != 1 || counts[avalon.RoleMorgana] != 1 {
		t.Errorf("role counts %v", counts)
	}

	// The projected view carries only the caller's own role.
	drain(e.clients[1])
	e.dispatch(e.clients[1], EventGetGameState, map[string]any{"game_id": 100})
	view := findEvent(drain(e.clients[1]), EventGameStateUpdate)
	pv := view.Payload.(avalon.PlayerView)
	if len(pv.Players) != 5 {
		t.Fatalf("view has %d players", len(pv.Players))
	}
	if pv.MyRole != roles[1] {
		t.Errorf("own role %s, want %s", pv.MyRole, roles[1])
	}
}

func TestTeamVoteUpdateCarriesCountsOnly(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 5)
	e.startAvalon("ROOM1", 100)
	leader := e.leaderOf(100)

	e.dispatch(e.clients[leader], EventProposeTeam, map[string]any{
		"game_id": 100, "team_members": []int64{1, 2},
	})
	proposed := findEvent(drain(e.clients[1]), EventTeamProposed)
	if proposed == nil {
		t.Fatal("no team_proposed broadcast")
	}
	for _, c := range e.clients {
		drain(c)
	}

	e.dispatch(e.clients[1], EventVoteTeam, map[string]any{"game_id": 100, "approve": true})
	update := findEvent(drain(e.clients[2]), EventTeamVoteUpdate)
	if update == nil {
		t.Fatal("no team_vote_update broadcast")
	}
	p := payloadMap(t, update)
	if p["votes_cast"] != 1 || p["total_players"] != 5 {
		t.Errorf("update payload %+v", p)
	}
	if _, leaked := p["votes"]; leaked {
		t.Fatal("team_vote_update leaked vote values")
	}
}

func TestGameErrorsGoToCallerOnly(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 5)
	e.startAvalon("ROOM1", 100)
	leader := e.leaderOf(100)
	var notLeader int64
	for uid := int64(1); uid <= 5; uid++ {
		if uid != leader {
			notLeader = uid
			break
		}
	}

	e.dispatch(e.clients[notLeader], EventProposeTeam, map[string]any{
		"game_id": 100, "team_members": []int64{1, 2},
	})
	errMsg := findEvent(drain(e.clients[notLeader]), EventError)
	if errMsg == nil {
		t.Fatal("no error reply")
	}
	if payloadMap(t, errMsg)["kind"] != string(avalon.ErrUnauthorized) {
		t.Errorf("error payload %+v", errMsg.Payload)
	}
	if findEvent(drain(e.clients[leader]), EventError) != nil {
		t.Fatal("error leaked to the room")
	}
}

func TestGameEventFromWrongRoomRejected(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 5)
	e.startAvalon("ROOM1", 100)

	out := e.connect("sid-out")
	e.dispatch(out, EventJoinRoom, map[string]any{
		"room_id": "ROOM2", "user_id": 9, "username": "user9", "display_name": "User 9",
	})
	drain(out)
	e.dispatch(out, EventVoteTeam, map[string]any{"game_id": 100, "approve": true})
	errMsg := findEvent(drain(out), EventError)
	if errMsg == nil {
		t.Fatal("no error for cross-room game event")
	}
	if payloadMap(t, errMsg)["kind"] != string(avalon.ErrNotFound) {
		t.Errorf("error payload %+v", errMsg.Payload)
	}
}

// runMissionRound proposes the given team, approves it unanimously, and casts
// mission votes. sabotage lists the team members voting fail.
func (e *env) runMissionRound(gameID int64, team []int64, sabotage map[int64]bool) {
	e.t.Helper()
	leader := e.leaderOf(gameID)
	e.dispatch(e.clients[leader], EventProposeTeam, map[string]any{
		"game_id": gameID, "team_members": team,
	})
	for uid := int64(1); uid <= int64(len(e.clients)); uid++ {
		e.dispatch(e.clients[uid], EventVoteTeam, map[string]any{"game_id": gameID, "approve": true})
	}
	for _, uid := range team {
		e.dispatch(e.clients[uid], EventVoteMission, map[string]any{
			"game_id": gameID, "success": !sabotage[uid],
		})
	}
}

func TestFullGameEvilWinsByFailedMissions(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 5)
	roles := e.startAvalon("ROOM1", 100)

	var evil []int64
	for uid, r := range roles {
		if r.Team() == avalon.TeamEvil {
			evil = append(evil, uid)
		}
	}
	saboteur := evil[0]
	var good []int64
	for uid := int64(1); uid <= 5; uid++ {
		if roles[uid].Team() == avalon.TeamGood {
			good = append(good, uid)
		}
	}

	// Rounds 1-3 for five players need teams of 2, 3, 2; the saboteur fails
	// each of them.
	teams := [][]int64{
		{saboteur, good[0]},
		{saboteur, good[0], good[1]},
		{saboteur, good[1]},
	}
	for i, team := range teams {
		for _, c := range e.clients {
			drain(c)
		}
		e.runMissionRound(100, team, map[int64]bool{saboteur: true})

		msgs := drain(e.clients[good[0]])
		result := findEvent(msgs, EventMissionResult)
		if result == nil {
			e.t.Fatalf("round %d: no mission_result", i+1)
		}
		p := payloadMap(t, result)
		if p["result"] != "fail" || p["fail_votes"] != 1 {
			t.Fatalf("round %d result %+v", i+1, p)
		}

		if i == 2 {
			ended := findEvent(msgs, EventGameEnded)
			if ended == nil {
				t.Fatal("no game_ended after third fail")
			}
			gp := ended.Payload.(gameEndedPayload)
			if gp.WinnerTeam != avalon.TeamEvil || gp.Reason != avalon.ReasonThreeFailedMissions {
				t.Fatalf("game_ended %+v", gp)
			}
			roleCount := 0
			for _, pl := range gp.Players {
				if pl.Role != "" {
					roleCount++
				}
			}
			if roleCount != 5 {
				t.Error("game_ended must reveal all roles")
			}
		}
	}

	// The game is gone from the registry and the cache.
	if _, err := e.registry.Get(e.ctx, 100); avalon.KindOf(err) != avalon.ErrNotFound {
		t.Error("game survived game_ended")
	}
	if len(e.snaps.snapshots) != 0 || len(e.snaps.roomGames) != 0 {
		t.Error("game cache keys survived game_ended")
	}
}

func TestFullGameAssassination(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 5)
	roles := e.startAvalon("ROOM1", 100)

	byRole := make(map[avalon.Role]int64)
	for uid, r := range roles {
		byRole[r] = uid
	}
	var good []int64
	for uid := int64(1); uid <= 5; uid++ {
		if roles[uid].Team() == avalon.TeamGood {
			good = append(good, uid)
		}
	}

	// Three clean missions by good players (team sizes 2, 3, 2).
	e.runMissionRound(100, []int64{good[0], good[1]}, nil)
	e.runMissionRound(100, []int64{good[0], good[1], good[2]}, nil)
	e.runMissionRound(100, []int64{good[0], good[2]}, nil)

	for _, c := range e.clients {
		drain(c)
	}
	e.dispatch(e.clients[byRole[avalon.RoleAssassin]], EventAssassinate, map[string]any{
		"game_id": 100, "target_id": byRole[avalon.RoleMerlin],
	})

	msgs := drain(e.clients[good[0]])
	shot := findEvent(msgs, EventAssassinationResult)
	if shot == nil {
		t.Fatal("no assassination_result broadcast")
	}
	if p := payloadMap(t, shot); p["merlin_killed"] != true {
		t.Errorf("assassination payload %+v", p)
	}
	ended := findEvent(msgs, EventGameEnded)
	if ended == nil {
		t.Fatal("no game_ended broadcast")
	}
	gp := ended.Payload.(gameEndedPayload)
	if gp.WinnerTeam != avalon.TeamEvil || gp.Reason != avalon.ReasonMerlinAssassinated {
		t.Fatalf("game_ended %+v", gp)
	}
	if gp.AssassinationTarget == nil || *gp.AssassinationTarget != byRole[avalon.RoleMerlin] {
		t.Error("game_ended missing assassination target")
	}
}

func TestGetGameStateSerializedWithVotes(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 5)
	e.startAvalon("ROOM1", 100)
	leader := e.leaderOf(100)
	e.dispatch(e.clients[leader], EventProposeTeam, map[string]any{
		"game_id": 100, "team_members": []int64{1, 2},
	})
	for _, c := range e.clients {
		drain(c)
	}

	vote := json.RawMessage(`{"game_id":100,"approve":false}`)
	query := json.RawMessage(`{"game_id":100}`)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for uid := int64(1); uid <= 4; uid++ {
			e.d.Dispatch(e.ctx, e.clients[uid], &ClientMessage{Event: EventVoteTeam, Payload: vote})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			e.d.Dispatch(e.ctx, e.clients[5], &ClientMessage{Event: EventGetGameState, Payload: query})
		}
	}()
	wg.Wait()

	// Every reply is a coherent snapshot taken between transitions.
	replies := 0
	for _, m := range drain(e.clients[5]) {
		if m.Event != EventGameStateUpdate {
			continue
		}
		pv := m.Payload.(avalon.PlayerView)
		if pv.GameID != 100 || pv.TeamVotesCount > 4 {
			t.Fatalf("incoherent view %+v", pv)
		}
		replies++
	}
	if replies != 20 {
		t.Fatalf("got %d state replies, want 20", replies)
	}
}

func TestGetGameStateByRoom(t *testing.T) {
	e := newEnv(t)
	e.joinN("ROOM1", 5)
	roles := e.startAvalon("ROOM1", 100)

	e.dispatch(e.clients[2], EventGetGameState, map[string]any{})
	view := findEvent(drain(e.clients[2]), EventGameStateUpdate)
	if view == nil {
		t.Fatal("no game_state_update reply")
	}
	pv := view.Payload.(avalon.PlayerView)
	if pv.GameID != 100 || pv.MyRole != roles[2] {
		t.Errorf("view %+v", pv)
	}
}
