package avalon

import (
	"math/rand"
)

// Snapshot is the primitive-only serialised form of a game, written to the
// cache after each resolved transition and used to rehydrate a game after a
// process restart.
type Snapshot struct {
	GameID              int64           `json:"game_id"`
	RoomID              string          `json:"room_id"`
	Players             []Player        `json:"players"`
	Phase               Phase           `json:"phase"`
	CurrentRound        int             `json:"current_round"`
	CurrentLeaderIndex  int             `json:"current_leader_index"`
	VoteTrack           int             `json:"vote_track"`
	MissionResults      []string        `json:"mission_results"`
	SuccessCount        int             `json:"success_count"`
	FailCount           int             `json:"fail_count"`
	ProposedTeam        []int64         `json:"proposed_team"`
	TeamVotes           map[int64]bool  `json:"team_votes"`
	MissionVotes        map[int64]bool  `json:"mission_votes"`
	MissionHistory      []MissionRecord `json:"mission_history"`
	WinnerTeam          Team            `json:"winner_team,omitempty"`
	WinReason           string          `json:"win_reason,omitempty"`
	AssassinationTarget int64           `json:"assassination_target,omitempty"`
}

// Snapshot serialises the full internal state, roles included.
func (g *Game) Snapshot() Snapshot {
	return Snapshot{
		GameID:              g.st.GameID,
		RoomID:              g.st.RoomID,
		Players:             append([]Player(nil), g.st.Players...),
		Phase:               g.st.Phase,
		CurrentRound:        g.st.CurrentRound,
		CurrentLeaderIndex:  g.st.CurrentLeaderIndex,
		VoteTrack:           g.st.VoteTrack,
		MissionResults:      append([]string(nil), g.st.MissionResults[:]...),
		SuccessCount:        g.st.SuccessCount,
		FailCount:           g.st.FailCount,
		ProposedTeam:        append([]int64(nil), g.st.ProposedTeam...),
		TeamVotes:           copyVotes(g.st.TeamVotes),
		MissionVotes:        copyVotes(g.st.MissionVotes),
		MissionHistory:      append([]MissionRecord(nil), g.st.MissionHistory...),
		WinnerTeam:          g.st.WinnerTeam,
		WinReason:           g.st.WinReason,
		AssassinationTarget: g.st.AssassinationTarget,
	}
}

// Restore reconstructs a game from a snapshot. The snapshot is validated
// against the state invariants first; an inconsistent snapshot is rejected so
// the caller can treat the game as ended.
func Restore(snap Snapshot, rng *rand.Rand) (*Game, error) {
	if err := validateSnapshot(snap); err != nil {
		return nil, err
	}

	g := &Game{rng: rng}
	g.st = state{
		GameID:              snap.GameID,
		RoomID:              snap.RoomID,
		Players:             append([]Player(nil), snap.Players...),
		Phase:               snap.Phase,
		CurrentRound:        snap.CurrentRound,
		CurrentLeaderIndex:  snap.CurrentLeaderIndex,
		VoteTrack:           snap.VoteTrack,
		SuccessCount:        snap.SuccessCount,
		FailCount:           snap.FailCount,
		ProposedTeam:        append([]int64(nil), snap.ProposedTeam...),
		TeamVotes:           copyVotes(snap.TeamVotes),
		MissionVotes:        copyVotes(snap.MissionVotes),
		MissionHistory:      append([]MissionRecord(nil), snap.MissionHistory...),
		WinnerTeam:          snap.WinnerTeam,
		WinReason:           snap.WinReason,
		AssassinationTarget: snap.AssassinationTarget,
	}
	copy(g.st.MissionResults[:], snap.MissionResults)
	return g, nil
}

func validateSnapshot(snap Snapshot) error {
	n := len(snap.Players)
	if n < MinPlayers || n > MaxPlayers {
		return newError(ErrValidation, "snapshot has %d players", n)
	}
	if snap.CurrentLeaderIndex < 0 || snap.CurrentLeaderIndex >= n {
		return newError(ErrValidation, "snapshot leader index %d out of range", snap.CurrentLeaderIndex)
	}
	if snap.CurrentRound < 1 || snap.CurrentRound > Rounds {
		return newError(ErrValidation, "snapshot round %d out of range", snap.CurrentRound)
	}
	if len(snap.MissionResults) > Rounds {
		return newError(ErrValidation, "snapshot has %d mission results", len(snap.MissionResults))
	}
	resolved := 0
	for _, r := range snap.MissionResults {
		if r != "" {
			resolved++
		}
	}
	if snap.SuccessCount+snap.FailCount != resolved {
		return newError(ErrValidation, "snapshot counts %d+%d disagree with %d resolved missions",
			snap.SuccessCount, snap.FailCount, resolved)
	}
	if resolved != len(snap.MissionHistory) {
		return newError(ErrValidation, "snapshot history length %d disagrees with %d resolved missions",
			len(snap.MissionHistory), resolved)
	}
	if snap.SuccessCount >= 3 && snap.FailCount >= 3 {
		return newError(ErrValidation, "snapshot has both teams at three missions")
	}
	if (snap.WinnerTeam != "") != (snap.Phase == PhaseGameOver) {
		return newError(ErrValidation, "snapshot winner %q disagrees with phase %q", snap.WinnerTeam, snap.Phase)
	}
	return nil
}
