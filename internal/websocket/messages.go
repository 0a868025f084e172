package websocket

import "encoding/json"

// ClientMessage is the envelope for messages from client to server.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is the envelope for messages from server to client.
type ServerMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound event names.
const (
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventReadyToggle  = "ready_toggle"
	EventChatMessage  = "chat_message"
	EventStartGame    = "start_game"
	EventProposeTeam  = "propose_team"
	EventVoteTeam     = "vote_team"
	EventVoteMission  = "vote_mission"
	EventAssassinate  = "assassinate"
	EventGetGameState = "get_game_state"
	EventGameAction   = "game_action"
)

// Outbound event names.
const (
	EventConnected           = "connected"
	EventUserJoined          = "user_joined"
	EventUserLeft            = "user_left"
	EventRoomUsers           = "room_users"
	EventHostChanged         = "host_changed"
	EventPlayerReady         = "player_ready"
	EventGameStarted         = "game_started"
	EventRoleAssigned        = "role_assigned"
	EventGameStateUpdate     = "game_state_update"
	EventTeamProposed        = "team_proposed"
	EventTeamVoteUpdate      = "team_vote_update"
	EventTeamVoteResult      = "team_vote_result"
	EventMissionVoteUpdate   = "mission_vote_update"
	EventMissionResult       = "mission_result"
	EventAssassinationResult = "assassination_result"
	EventGameEnded           = "game_ended"
	EventError               = "error"
)

// Player-count error strings shown by the client UI; the content is part of
// the external contract.
const (
	MsgTooFewPlayers  = "아발론은 최소 5명이 필요합니다"
	MsgTooManyPlayers = "아발론은 최대 10명까지 가능합니다"
)

// MaxChatMessageLength is the maximum allowed length for a chat message.
const MaxChatMessageLength = 2000

// MaxEventNameLength bounds the inbound "event" field.
const MaxEventNameLength = 64
