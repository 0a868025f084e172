package avalon

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	g := newTestGame(t, 7, 31)

	// Play into the middle of round 2 so the snapshot carries history, a live
	// proposal, and partial votes.
	team := g.PlayerIDs()[:2]
	approveProposal(t, g, team)
	for _, id := range team {
		vote := g.st.player(id).Team == TeamGood
		if _, err := g.VoteMission(id, vote); err != nil {
			t.Fatalf("mission vote: %v", err)
		}
	}
	if _, err := g.ProposeTeam(g.st.leaderID(), g.PlayerIDs()[:3]); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := g.VoteTeam(g.PlayerIDs()[0], false); err != nil {
		t.Fatalf("vote: %v", err)
	}

	snap := g.Snapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored, err := Restore(decoded, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !reflect.DeepEqual(restored.Snapshot(), snap) {
		t.Fatal("snapshot changed across restore")
	}

	// The restored game keeps playing from where it left off.
	for _, id := range restored.PlayerIDs()[1:] {
		if _, err := restored.VoteTeam(id, true); err != nil {
			t.Fatalf("vote after restore: %v", err)
		}
	}
	if restored.Phase() != PhaseMission {
		t.Errorf("phase %s after restore, want mission", restored.Phase())
	}
}

func TestSnapshotDoesNotAliasState(t *testing.T) {
	g := newTestGame(t, 5, 32)
	snap := g.Snapshot()
	snap.Players[0].Role = RoleMinion
	snap.MissionResults[0] = "fail"
	if g.st.Players[0].Role == RoleMinion || g.st.MissionResults[0] == "fail" {
		t.Fatal("snapshot shares storage with live state")
	}
}

func TestRestoreRejectsInconsistentSnapshots(t *testing.T) {
	base := func() Snapshot {
		return newTestGame(t, 5, 33).Snapshot()
	}

	cases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"too few players", func(s *Snapshot) { s.Players = s.Players[:2] }},
		{"leader index out of range", func(s *Snapshot) { s.CurrentLeaderIndex = 7 }},
		{"round out of range", func(s *Snapshot) { s.CurrentRound = 6 }},
		{"counts disagree with results", func(s *Snapshot) { s.SuccessCount = 2 }},
		{"history disagrees with results", func(s *Snapshot) {
			s.MissionResults[0] = "success"
			s.SuccessCount = 1
		}},
		{"both teams won missions", func(s *Snapshot) {
			s.MissionResults = []string{"success", "success", "success", "fail", "fail"}
			s.SuccessCount = 3
			s.FailCount = 3
			for i := 0; i < 5; i++ {
				s.MissionHistory = append(s.MissionHistory, MissionRecord{Round: i + 1})
			}
		}},
		{"winner without game over", func(s *Snapshot) { s.WinnerTeam = TeamEvil }},
		{"game over without winner", func(s *Snapshot) { s.Phase = PhaseGameOver }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			snap := base()
			c.mutate(&snap)
			if _, err := Restore(snap, rand.New(rand.NewSource(1))); KindOf(err) != ErrValidation {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}
