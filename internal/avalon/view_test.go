package avalon

import "testing"

func knownIDs(view PlayerView) map[int64]string {
	out := make(map[int64]string, len(view.KnownInfo))
	for _, k := range view.KnownInfo {
		out[k.UserID] = k.Info
	}
	return out
}

func TestPublicStateHidesRoles(t *testing.T) {
	g := newTestGame(t, 5, 21)
	if _, err := g.ProposeTeam(g.st.leaderID(), g.PlayerIDs()[:2]); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := g.VoteTeam(g.PlayerIDs()[0], true); err != nil {
		t.Fatalf("vote: %v", err)
	}

	pub := g.Public()
	if pub.TeamVotesCount != 1 {
		t.Errorf("team votes count %d, want 1", pub.TeamVotesCount)
	}
	if len(pub.Players) != 5 {
		t.Fatalf("players %d", len(pub.Players))
	}
	if pub.CurrentLeaderID != g.st.leaderID() {
		t.Errorf("leader %d, want %d", pub.CurrentLeaderID, g.st.leaderID())
	}
	if pub.TeamSizeRequired != 2 {
		t.Errorf("team size required %d, want 2", pub.TeamSizeRequired)
	}
}

// Scenario: Percival sees Merlin and Morgana under the same ambiguous tag.
func TestPercivalSeesMerlinAndMorgana(t *testing.T) {
	g := newTestGame(t, 5, 22)
	percival := findByRole(g, RolePercival)
	merlin := findByRole(g, RoleMerlin)
	morgana := findByRole(g, RoleMorgana)

	known := knownIDs(g.View(percival.UserID))
	if len(known) != 2 {
		t.Fatalf("percival knows %d players, want 2", len(known))
	}
	if known[merlin.UserID] != "merlin_or_morgana" || known[morgana.UserID] != "merlin_or_morgana" {
		t.Errorf("percival's info %v", known)
	}
}

func TestMerlinSeesEvilExceptMordred(t *testing.T) {
	// 9 players: morgana, assassin, mordred.
	g := newTestGame(t, 9, 23)
	merlin := findByRole(g, RoleMerlin)
	mordred := findByRole(g, RoleMordred)

	known := knownIDs(g.View(merlin.UserID))
	if len(known) != 2 {
		t.Fatalf("merlin knows %d players, want 2", len(known))
	}
	if _, ok := known[mordred.UserID]; ok {
		t.Error("mordred must be hidden from merlin")
	}
	for id, info := range known {
		if info != "evil" {
			t.Errorf("merlin's info for %d is %q", id, info)
		}
		if g.st.player(id).Team != TeamEvil {
			t.Errorf("merlin sees good player %d", id)
		}
	}
}

func TestOberonIsolated(t *testing.T) {
	// 10 players: morgana, assassin, mordred, oberon.
	g := newTestGame(t, 10, 24)
	oberon := findByRole(g, RoleOberon)
	morgana := findByRole(g, RoleMorgana)

	if known := g.View(oberon.UserID).KnownInfo; len(known) != 0 {
		t.Errorf("oberon must know nobody, got %v", known)
	}
	known := knownIDs(g.View(morgana.UserID))
	if _, ok := known[oberon.UserID]; ok {
		t.Error("oberon must be hidden from evil teammates")
	}
	if _, ok := known[morgana.UserID]; ok {
		t.Error("a player must not appear in their own known info")
	}
	if len(known) != 2 {
		t.Errorf("morgana knows %d players, want 2", len(known))
	}
	for _, info := range known {
		if info != "evil_teammate" {
			t.Errorf("unexpected info %q", info)
		}
	}
}

func TestViewActions(t *testing.T) {
	g := newTestGame(t, 5, 25)
	leader := g.st.leaderID()

	view := g.View(leader)
	if !view.CanAct || len(view.AvailableActions) != 1 || view.AvailableActions[0] != "propose_team" {
		t.Errorf("leader view %+v", view.AvailableActions)
	}
	for _, id := range g.PlayerIDs() {
		if id != leader && g.View(id).CanAct {
			t.Errorf("player %d can act during team selection", id)
		}
	}

	team := g.PlayerIDs()[:2]
	if _, err := g.ProposeTeam(leader, team); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := g.VoteTeam(team[0], true); err != nil {
		t.Fatalf("vote: %v", err)
	}

	voted := g.View(team[0])
	if voted.CanAct || voted.MyTeamVote == nil || !*voted.MyTeamVote {
		t.Errorf("voted view: canAct=%v vote=%v", voted.CanAct, voted.MyTeamVote)
	}
	pending := g.View(team[1])
	if !pending.CanAct || len(pending.AvailableActions) != 1 || pending.AvailableActions[0] != "vote_team" {
		t.Errorf("pending view %+v", pending.AvailableActions)
	}
}

func TestViewMissionActions(t *testing.T) {
	g := newTestGame(t, 5, 26)
	evil := findByTeam(g, TeamEvil)
	good := findByTeam(g, TeamGood)
	team := []int64{evil[0], good[0]}
	approveProposal(t, g, team)

	ev := g.View(evil[0])
	if len(ev.AvailableActions) != 2 || ev.AvailableActions[0] != "vote_mission" || ev.AvailableActions[1] != "can_fail" {
		t.Errorf("evil member actions %v", ev.AvailableActions)
	}
	gd := g.View(good[0])
	if len(gd.AvailableActions) != 1 || gd.AvailableActions[0] != "vote_mission" {
		t.Errorf("good member actions %v", gd.AvailableActions)
	}
	if off := g.View(good[1]); off.CanAct {
		t.Error("off-team player can act during mission")
	}
}

func TestViewUnknownUser(t *testing.T) {
	g := newTestGame(t, 5, 27)
	view := g.View(999)
	if view.MyRole != "" || view.MyTeam != "" || view.CanAct || len(view.KnownInfo) != 0 {
		t.Errorf("outsider view leaks: %+v", view)
	}
	if len(view.Players) != 5 {
		t.Error("outsider still gets the public roster")
	}
}
