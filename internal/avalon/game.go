package avalon

import (
	"math/rand"
)

// Game drives a single Avalon match. All mutating operations validate fully
// before touching state: a returned error means nothing changed.
//
// Game is not safe for concurrent use; callers serialise access per game id.
type Game struct {
	st  state
	rng *rand.Rand
}

// Seat describes one participant handed to New.
type Seat struct {
	UserID      int64
	Username    string
	DisplayName string
}

// New creates and initialises a game: shuffles seating order, deals roles from
// the composition table, and picks a random starting leader. The rng is the
// game's only randomness capability; tests pass a seeded one.
func New(gameID int64, roomID string, seats []Seat, rng *rand.Rand) (*Game, error) {
	n := len(seats)
	if n < MinPlayers {
		return nil, newError(ErrCapacity, "avalon requires at least %d players, got %d", MinPlayers, n)
	}
	if n > MaxPlayers {
		return nil, newError(ErrCapacity, "avalon allows at most %d players, got %d", MaxPlayers, n)
	}

	g := &Game{
		st: state{
			GameID:       gameID,
			RoomID:       roomID,
			Phase:        PhaseNight,
			CurrentRound: 1,
			TeamVotes:    make(map[int64]bool),
			MissionVotes: make(map[int64]bool),
		},
		rng: rng,
	}

	g.st.Players = make([]Player, n)
	for i, s := range seats {
		g.st.Players[i] = Player{UserID: s.UserID, Username: s.Username, DisplayName: s.DisplayName}
	}
	rng.Shuffle(n, func(i, j int) {
		g.st.Players[i], g.st.Players[j] = g.st.Players[j], g.st.Players[i]
	})

	g.dealRoles()
	g.st.CurrentLeaderIndex = rng.Intn(n)
	g.st.Phase = PhaseTeamSelection
	return g, nil
}

func (g *Game) dealRoles() {
	deck := RoleDeck(len(g.st.Players))
	g.rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	for i := range g.st.Players {
		g.st.Players[i].Role = deck[i]
		g.st.Players[i].Team = deck[i].Team()
	}
}

// GameID returns the game's id.
func (g *Game) GameID() int64 { return g.st.GameID }

// RoomID returns the room code the game belongs to.
func (g *Game) RoomID() string { return g.st.RoomID }

// Phase returns the current phase.
func (g *Game) Phase() Phase { return g.st.Phase }

// Winner returns the winning team, or "" while the game is running.
func (g *Game) Winner() Team { return g.st.WinnerTeam }

// Players returns the seating order with roles hidden.
func (g *Game) Players() []PublicPlayer {
	out := make([]PublicPlayer, len(g.st.Players))
	for i, p := range g.st.Players {
		out[i] = p.public()
	}
	return out
}

// PlayerIDs returns the user ids in seating order.
func (g *Game) PlayerIDs() []int64 {
	out := make([]int64, len(g.st.Players))
	for i, p := range g.st.Players {
		out[i] = p.UserID
	}
	return out
}

// ProposeResult is returned when a team proposal is accepted.
type ProposeResult struct {
	LeaderID     int64
	ProposedTeam []int64
	Phase        Phase
}

// ProposeTeam records the leader's team nomination and opens the team vote.
func (g *Game) ProposeTeam(leaderID int64, members []int64) (*ProposeResult, error) {
	if g.st.Phase != PhaseTeamSelection {
		return nil, newError(ErrWrongPhase, "not in team selection phase")
	}
	if g.st.leaderID() != leaderID {
		return nil, newError(ErrUnauthorized, "only the leader can propose a team")
	}
	required := g.st.teamSizeRequired()
	if len(members) != required {
		return nil, newError(ErrRuleViolation, "team must have exactly %d members", required)
	}
	seen := make(map[int64]bool, len(members))
	for _, id := range members {
		if g.st.player(id) == nil {
			return nil, newError(ErrRuleViolation, "invalid team member %d", id)
		}
		if seen[id] {
			return nil, newError(ErrRuleViolation, "team members must be unique")
		}
		seen[id] = true
	}

	g.st.ProposedTeam = append([]int64(nil), members...)
	g.st.TeamVotes = make(map[int64]bool)
	g.st.Phase = PhaseTeamVote
	return &ProposeResult{LeaderID: leaderID, ProposedTeam: g.st.ProposedTeam, Phase: g.st.Phase}, nil
}

// TeamVoteResult reports progress of the team vote, and its resolution once
// every player has voted.
type TeamVoteResult struct {
	Complete     bool
	VotesCast    int
	TotalPlayers int

	// Resolution fields, valid only when Complete.
	Approved     bool
	ApproveCount int
	RejectCount  int
	Votes        map[int64]bool
	VoteTrack    int
	NewLeaderID  int64 // set when rejected and the game continues
	GameOver     bool
	Winner       Team
	Reason       string
	Phase        Phase
}

// VoteTeam records one player's approve/reject vote on the current proposal.
// A strict majority of approvals passes the team; ties reject.
func (g *Game) VoteTeam(playerID int64, approve bool) (*TeamVoteResult, error) {
	if g.st.Phase != PhaseTeamVote {
		return nil, newError(ErrWrongPhase, "not in team vote phase")
	}
	if g.st.player(playerID) == nil {
		return nil, newError(ErrUnauthorized, "player %d is not in this game", playerID)
	}
	if _, voted := g.st.TeamVotes[playerID]; voted {
		return nil, newError(ErrDoubleAction, "player has already voted")
	}

	g.st.TeamVotes[playerID] = approve
	n := len(g.st.Players)
	if len(g.st.TeamVotes) < n {
		return &TeamVoteResult{VotesCast: len(g.st.TeamVotes), TotalPlayers: n}, nil
	}
	return g.resolveTeamVote(), nil
}

func (g *Game) resolveTeamVote() *TeamVoteResult {
	n := len(g.st.Players)
	approve := 0
	for _, v := range g.st.TeamVotes {
		if v {
			approve++
		}
	}
	reject := n - approve

	res := &TeamVoteResult{
		Complete:     true,
		VotesCast:    n,
		TotalPlayers: n,
		ApproveCount: approve,
		RejectCount:  reject,
		Votes:        copyVotes(g.st.TeamVotes),
	}

	if approve > reject {
		// Approval resets the vote track.
		g.st.Phase = PhaseMission
		g.st.MissionVotes = make(map[int64]bool)
		g.st.VoteTrack = 0
		res.Approved = true
		res.VoteTrack = 0
		res.Phase = g.st.Phase
		return res
	}

	g.st.VoteTrack++
	res.VoteTrack = g.st.VoteTrack
	if g.st.VoteTrack >= 5 {
		g.st.WinnerTeam = TeamEvil
		g.st.WinReason = ReasonFiveRejections
		g.st.Phase = PhaseGameOver
		res.GameOver = true
		res.Winner = TeamEvil
		res.Reason = ReasonFiveRejections
		res.Phase = g.st.Phase
		return res
	}

	g.st.advanceLeader()
	g.st.ProposedTeam = nil
	g.st.TeamVotes = make(map[int64]bool)
	g.st.Phase = PhaseTeamSelection
	res.NewLeaderID = g.st.leaderID()
	res.Phase = g.st.Phase
	return res
}

// MissionVoteResult reports progress of the mission vote, and its resolution
// once every team member has voted.
type MissionVoteResult struct {
	Complete  bool
	VotesCast int
	TeamSize  int

	// Resolution fields, valid only when Complete.
	Round           int
	Result          string // "success" | "fail"
	FailVotes       int
	FailRequirement int
	SuccessTotal    int
	FailTotal       int
	ShuffledVotes   []bool
	NextRound       int   // set when the game continues
	NewLeaderID     int64 // set when the game continues
	GameOver        bool
	Winner          Team
	Reason          string
	Phase           Phase
}

// VoteMission records one team member's success/fail vote. Good players must
// vote success.
func (g *Game) VoteMission(playerID int64, success bool) (*MissionVoteResult, error) {
	if g.st.Phase != PhaseMission {
		return nil, newError(ErrWrongPhase, "not in mission phase")
	}
	if !g.st.onProposedTeam(playerID) {
		return nil, newError(ErrUnauthorized, "player is not on the mission team")
	}
	if _, voted := g.st.MissionVotes[playerID]; voted {
		return nil, newError(ErrDoubleAction, "player has already voted")
	}
	p := g.st.player(playerID)
	if p == nil {
		return nil, newError(ErrUnauthorized, "player %d is not in this game", playerID)
	}
	if p.Team == TeamGood && !success {
		return nil, newError(ErrRuleViolation, "good team members must vote success")
	}

	g.st.MissionVotes[playerID] = success
	if len(g.st.MissionVotes) < len(g.st.ProposedTeam) {
		return &MissionVoteResult{VotesCast: len(g.st.MissionVotes), TeamSize: len(g.st.ProposedTeam)}, nil
	}
	return g.resolveMission(), nil
}

func (g *Game) resolveMission() *MissionVoteResult {
	failVotes := 0
	for _, v := range g.st.MissionVotes {
		if !v {
			failVotes++
		}
	}
	required := g.st.failRequirement()
	succeeded := failVotes < required
	result := "fail"
	if succeeded {
		result = "success"
	}

	completedRound := g.st.CurrentRound
	g.st.MissionResults[completedRound-1] = result
	if succeeded {
		g.st.SuccessCount++
	} else {
		g.st.FailCount++
	}

	// History keeps a random permutation of the cast values so the record is
	// unlinkable to voters. The leader recorded is the one whose proposal was
	// carried out, captured before any leader advance.
	shuffled := make([]bool, 0, len(g.st.MissionVotes))
	for _, v := range g.st.MissionVotes {
		shuffled = append(shuffled, v)
	}
	g.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	g.st.MissionHistory = append(g.st.MissionHistory, MissionRecord{
		Round:        completedRound,
		TeamSize:     len(g.st.ProposedTeam),
		LeaderID:     g.st.leaderID(),
		Team:         append([]int64(nil), g.st.ProposedTeam...),
		TeamVotes:    copyVotes(g.st.TeamVotes),
		MissionVotes: shuffled,
		Result:       result,
	})

	res := &MissionVoteResult{
		Complete:        true,
		VotesCast:       len(g.st.MissionVotes),
		TeamSize:        len(g.st.ProposedTeam),
		Round:           completedRound,
		Result:          result,
		FailVotes:       failVotes,
		FailRequirement: required,
		SuccessTotal:    g.st.SuccessCount,
		FailTotal:       g.st.FailCount,
		ShuffledVotes:   shuffled,
	}

	if g.st.SuccessCount >= 3 {
		// Good took three missions; evil gets one shot at Merlin.
		g.st.Phase = PhaseAssassination
		res.Phase = g.st.Phase
		return res
	}
	if g.st.FailCount >= 3 {
		g.st.WinnerTeam = TeamEvil
		g.st.WinReason = ReasonThreeFailedMissions
		g.st.Phase = PhaseGameOver
		res.GameOver = true
		res.Winner = TeamEvil
		res.Reason = ReasonThreeFailedMissions
		res.Phase = g.st.Phase
		return res
	}

	g.st.CurrentRound++
	g.st.advanceLeader()
	g.st.ProposedTeam = nil
	g.st.TeamVotes = make(map[int64]bool)
	g.st.MissionVotes = make(map[int64]bool)
	g.st.VoteTrack = 0
	g.st.Phase = PhaseTeamSelection
	res.NextRound = g.st.CurrentRound
	res.NewLeaderID = g.st.leaderID()
	res.Phase = g.st.Phase
	return res
}

// AssassinationResult reports the outcome of the assassin's shot.
type AssassinationResult struct {
	TargetID     int64
	MerlinKilled bool
	Winner       Team
	Reason       string
	Phase        Phase
}

// Assassinate resolves the assassin's attempt on Merlin and ends the game.
func (g *Game) Assassinate(assassinID, targetID int64) (*AssassinationResult, error) {
	if g.st.Phase != PhaseAssassination {
		return nil, newError(ErrWrongPhase, "not in assassination phase")
	}
	assassin := g.st.player(assassinID)
	if assassin == nil || assassin.Role != RoleAssassin {
		return nil, newError(ErrUnauthorized, "only the assassin can assassinate")
	}
	target := g.st.player(targetID)
	if target == nil {
		return nil, newError(ErrRuleViolation, "invalid target %d", targetID)
	}
	if target.Team != TeamGood {
		return nil, newError(ErrRuleViolation, "can only assassinate good team members")
	}

	g.st.AssassinationTarget = targetID
	g.st.Phase = PhaseGameOver
	res := &AssassinationResult{TargetID: targetID, Phase: g.st.Phase}
	if target.Role == RoleMerlin {
		g.st.WinnerTeam = TeamEvil
		g.st.WinReason = ReasonMerlinAssassinated
		res.MerlinKilled = true
		res.Winner = TeamEvil
		res.Reason = ReasonMerlinAssassinated
	} else {
		g.st.WinnerTeam = TeamGood
		g.st.WinReason = ReasonMerlinSurvived
		res.Winner = TeamGood
		res.Reason = ReasonMerlinSurvived
	}
	return res, nil
}

// FinalResult is the game_ended payload: winner, reason, full roster with
// roles revealed, per-round results, and the assassination target if any.
type FinalResult struct {
	WinnerTeam          Team            `json:"winner_team"`
	Reason              string          `json:"reason"`
	Players             []Player        `json:"players"`
	MissionResults      []string        `json:"mission_results"`
	MissionHistory      []MissionRecord `json:"mission_history"`
	AssassinationTarget *int64          `json:"assassination_target"`
}

// Result returns the final result. It is only valid once the game is over.
func (g *Game) Result() (*FinalResult, error) {
	if g.st.Phase != PhaseGameOver {
		return nil, newError(ErrWrongPhase, "game is not over")
	}
	res := &FinalResult{
		WinnerTeam:     g.st.WinnerTeam,
		Reason:         g.st.WinReason,
		Players:        append([]Player(nil), g.st.Players...),
		MissionResults: append([]string(nil), g.st.MissionResults[:]...),
		MissionHistory: append([]MissionRecord(nil), g.st.MissionHistory...),
	}
	if g.st.AssassinationTarget != 0 {
		t := g.st.AssassinationTarget
		res.AssassinationTarget = &t
	}
	return res, nil
}

func copyVotes(in map[int64]bool) map[int64]bool {
	out := make(map[int64]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
