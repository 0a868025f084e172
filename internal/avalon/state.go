package avalon

// Phase is the current stage of the game state machine.
type Phase string

const (
	PhaseNight         Phase = "night"
	PhaseTeamSelection Phase = "team_selection"
	PhaseTeamVote      Phase = "team_vote"
	PhaseMission       Phase = "mission"
	PhaseAssassination Phase = "assassination"
	PhaseGameOver      Phase = "game_over"
)

// Role is a hidden role dealt at game start.
type Role string

const (
	RoleMerlin       Role = "merlin"
	RolePercival     Role = "percival"
	RoleLoyalServant Role = "loyal_servant"
	RoleMordred      Role = "mordred"
	RoleMorgana      Role = "morgana"
	RoleAssassin     Role = "assassin"
	RoleOberon       Role = "oberon"
	RoleMinion       Role = "minion"
)

// Team returns the side the role plays for.
func (r Role) Team() Team {
	switch r {
	case RoleMordred, RoleMorgana, RoleAssassin, RoleOberon, RoleMinion:
		return TeamEvil
	default:
		return TeamGood
	}
}

// Team is the side a role belongs to.
type Team string

const (
	TeamGood Team = "good"
	TeamEvil Team = "evil"
)

// Win reason tags carried on game_ended.
const (
	ReasonFiveRejections      = "five_rejections"
	ReasonThreeFailedMissions = "three_failed_missions"
	ReasonMerlinAssassinated  = "merlin_assassinated"
	ReasonMerlinSurvived      = "merlin_survived"
)

// Player is a seat at the table. Role and Team are dealt once at game start
// and never change.
type Player struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role,omitempty"`
	Team        Team   `json:"team,omitempty"`
}

// PublicPlayer is the broadcast-safe subset of Player.
type PublicPlayer struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

func (p Player) public() PublicPlayer {
	return PublicPlayer{UserID: p.UserID, Username: p.Username, DisplayName: p.DisplayName}
}

// MissionRecord is an append-only history entry for a resolved mission.
// MissionVotes is a random permutation of the cast values so that a vote can
// never be linked back to its voter.
type MissionRecord struct {
	Round        int            `json:"round"`
	TeamSize     int            `json:"team_size"`
	LeaderID     int64          `json:"leader_id"`
	Team         []int64        `json:"team"`
	TeamVotes    map[int64]bool `json:"team_votes"`
	MissionVotes []bool         `json:"mission_votes"`
	Result       string         `json:"result"` // "success" | "fail"
}

// state is the full internal game state. It is mutated only by Game
// operations; everything exported leaves through projections or snapshots.
type state struct {
	GameID  int64
	RoomID  string
	Players []Player // seating order, shuffled once at init

	Phase              Phase
	CurrentRound       int // 1..Rounds
	CurrentLeaderIndex int
	VoteTrack          int // consecutive team rejections this round

	MissionResults [Rounds]string // "" until resolved, then "success" | "fail"
	SuccessCount   int
	FailCount      int

	ProposedTeam []int64
	TeamVotes    map[int64]bool
	MissionVotes map[int64]bool

	MissionHistory []MissionRecord

	WinnerTeam          Team  // "" until game over
	WinReason           string
	AssassinationTarget int64 // 0 until assassination resolved
}

func (s *state) player(userID int64) *Player {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return &s.Players[i]
		}
	}
	return nil
}

func (s *state) leaderID() int64 {
	if len(s.Players) == 0 {
		return 0
	}
	return s.Players[s.CurrentLeaderIndex].UserID
}

func (s *state) teamSizeRequired() int {
	return TeamSize(len(s.Players), s.CurrentRound)
}

func (s *state) failRequirement() int {
	return FailRequirement(len(s.Players), s.CurrentRound)
}

func (s *state) onProposedTeam(userID int64) bool {
	for _, id := range s.ProposedTeam {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *state) advanceLeader() {
	s.CurrentLeaderIndex = (s.CurrentLeaderIndex + 1) % len(s.Players)
}
