package avalon

// KnownInfo is one entry of hidden information revealed to a player by the
// visibility rules.
type KnownInfo struct {
	UserID      int64  `json:"user_id"`
	Info        string `json:"info"` // "evil" | "merlin_or_morgana" | "evil_teammate"
	DisplayName string `json:"display_name"`
}

// PublicState is the broadcast-safe game state: no roles, no vote values for
// the round in flight, only counts.
type PublicState struct {
	GameID            int64           `json:"game_id"`
	RoomID            string          `json:"room_id"`
	Players           []PublicPlayer  `json:"players"`
	Phase             Phase           `json:"phase"`
	CurrentRound      int             `json:"current_round"`
	CurrentLeaderID   int64           `json:"current_leader_id"`
	VoteTrack         int             `json:"vote_track"`
	MissionResults    []string        `json:"mission_results"`
	SuccessCount      int             `json:"success_count"`
	FailCount         int             `json:"fail_count"`
	ProposedTeam      []int64         `json:"proposed_team"`
	TeamVotesCount    int             `json:"team_votes_count"`
	MissionVotesCount int             `json:"mission_votes_count"`
	WinnerTeam        Team            `json:"winner_team,omitempty"`
	TeamSizeRequired  int             `json:"team_size_required"`
	MissionHistory    []MissionRecord `json:"mission_history"`
}

// PlayerView is the PublicState plus everything one player is allowed to see:
// their own role, their hidden knowledge, and their own pending votes.
type PlayerView struct {
	PublicState
	MyRole           Role        `json:"my_role"`
	MyTeam           Team        `json:"my_team"`
	KnownInfo        []KnownInfo `json:"known_info"`
	CanAct           bool        `json:"can_act"`
	AvailableActions []string    `json:"available_actions"`
	MyTeamVote       *bool       `json:"my_team_vote,omitempty"`
	MyMissionVote    *bool       `json:"my_mission_vote,omitempty"`
}

// Public returns the shared, broadcast-safe state.
func (g *Game) Public() PublicState {
	results := make([]string, Rounds)
	copy(results, g.st.MissionResults[:])
	return PublicState{
		GameID:            g.st.GameID,
		RoomID:            g.st.RoomID,
		Players:           g.Players(),
		Phase:             g.st.Phase,
		CurrentRound:      g.st.CurrentRound,
		CurrentLeaderID:   g.st.leaderID(),
		VoteTrack:         g.st.VoteTrack,
		MissionResults:    results,
		SuccessCount:      g.st.SuccessCount,
		FailCount:         g.st.FailCount,
		ProposedTeam:      append([]int64(nil), g.st.ProposedTeam...),
		TeamVotesCount:    len(g.st.TeamVotes),
		MissionVotesCount: len(g.st.MissionVotes),
		WinnerTeam:        g.st.WinnerTeam,
		TeamSizeRequired:  g.st.teamSizeRequired(),
		MissionHistory:    append([]MissionRecord(nil), g.st.MissionHistory...),
	}
}

// View projects the state for one player. An unknown user id yields the bare
// public state with no private fields set.
func (g *Game) View(userID int64) PlayerView {
	view := PlayerView{PublicState: g.Public()}
	p := g.st.player(userID)
	if p == nil {
		view.KnownInfo = []KnownInfo{}
		view.AvailableActions = []string{}
		return view
	}

	view.MyRole = p.Role
	view.MyTeam = p.Team
	view.KnownInfo = g.knownInfo(p)
	view.CanAct = g.canAct(userID)
	view.AvailableActions = g.availableActions(p)
	if v, ok := g.st.TeamVotes[userID]; ok {
		vv := v
		view.MyTeamVote = &vv
	}
	if v, ok := g.st.MissionVotes[userID]; ok {
		vv := v
		view.MyMissionVote = &vv
	}
	return view
}

// knownInfo applies the visibility table. Merlin sees evil except Mordred;
// Percival sees Merlin and Morgana without telling them apart; evil players
// other than Oberon see each other; Oberon sees and is seen by no one.
func (g *Game) knownInfo(p *Player) []KnownInfo {
	known := []KnownInfo{}
	switch {
	case p.Role == RoleMerlin:
		for _, other := range g.st.Players {
			if other.Team == TeamEvil && other.Role != RoleMordred {
				known = append(known, KnownInfo{UserID: other.UserID, Info: "evil", DisplayName: other.DisplayName})
			}
		}
	case p.Role == RolePercival:
		for _, other := range g.st.Players {
			if other.Role == RoleMerlin || other.Role == RoleMorgana {
				known = append(known, KnownInfo{UserID: other.UserID, Info: "merlin_or_morgana", DisplayName: other.DisplayName})
			}
		}
	case p.Team == TeamEvil && p.Role != RoleOberon:
		for _, other := range g.st.Players {
			if other.UserID != p.UserID && other.Team == TeamEvil && other.Role != RoleOberon {
				known = append(known, KnownInfo{UserID: other.UserID, Info: "evil_teammate", DisplayName: other.DisplayName})
			}
		}
	}
	return known
}

func (g *Game) canAct(userID int64) bool {
	switch g.st.Phase {
	case PhaseTeamSelection:
		return g.st.leaderID() == userID
	case PhaseTeamVote:
		_, voted := g.st.TeamVotes[userID]
		return !voted
	case PhaseMission:
		_, voted := g.st.MissionVotes[userID]
		return g.st.onProposedTeam(userID) && !voted
	case PhaseAssassination:
		p := g.st.player(userID)
		return p != nil && p.Role == RoleAssassin
	}
	return false
}

func (g *Game) availableActions(p *Player) []string {
	actions := []string{}
	switch g.st.Phase {
	case PhaseTeamSelection:
		if g.st.leaderID() == p.UserID {
			actions = append(actions, "propose_team")
		}
	case PhaseTeamVote:
		if _, voted := g.st.TeamVotes[p.UserID]; !voted {
			actions = append(actions, "vote_team")
		}
	case PhaseMission:
		if _, voted := g.st.MissionVotes[p.UserID]; g.st.onProposedTeam(p.UserID) && !voted {
			actions = append(actions, "vote_mission")
			if p.Team == TeamEvil {
				actions = append(actions, "can_fail")
			}
		}
	case PhaseAssassination:
		if p.Role == RoleAssassin {
			actions = append(actions, "assassinate")
		}
	}
	return actions
}
