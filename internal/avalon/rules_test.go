package avalon

import "testing"

func TestTeamSize(t *testing.T) {
	cases := []struct {
		players, round, want int
	}{
		{5, 1, 2}, {5, 3, 2}, {5, 5, 3},
		{6, 3, 4},
		{7, 1, 2}, {7, 4, 4},
		{8, 1, 3}, {8, 5, 5},
		{10, 4, 5},
		{4, 1, 0}, {11, 1, 0}, {5, 0, 0}, {5, 6, 0},
	}
	for _, c := range cases {
		if got := TeamSize(c.players, c.round); got != c.want {
			t.Errorf("TeamSize(%d, %d) = %d, want %d", c.players, c.round, got, c.want)
		}
	}
}

func TestFailRequirement(t *testing.T) {
	for n := MinPlayers; n <= MaxPlayers; n++ {
		for round := 1; round <= Rounds; round++ {
			want := 1
			if n >= 7 && round == 4 {
				want = 2
			}
			if got := FailRequirement(n, round); got != want {
				t.Errorf("FailRequirement(%d, %d) = %d, want %d", n, round, got, want)
			}
		}
	}
	if got := FailRequirement(3, 1); got != 1 {
		t.Errorf("unsupported player count should default to 1, got %d", got)
	}
}

func TestRoleDeck(t *testing.T) {
	for n := MinPlayers; n <= MaxPlayers; n++ {
		deck := RoleDeck(n)
		if len(deck) != n {
			t.Fatalf("RoleDeck(%d) has %d roles", n, len(deck))
		}
		evil := 0
		merlins, assassins := 0, 0
		for _, r := range deck {
			if r.Team() == TeamEvil {
				evil++
			}
			switch r {
			case RoleMerlin:
				merlins++
			case RoleAssassin:
				assassins++
			}
		}
		if evil != EvilCount(n) {
			t.Errorf("RoleDeck(%d): %d evil roles, want %d", n, evil, EvilCount(n))
		}
		if merlins != 1 || assassins != 1 {
			t.Errorf("RoleDeck(%d): %d merlins, %d assassins", n, merlins, assassins)
		}
	}
	if RoleDeck(4) != nil {
		t.Error("RoleDeck(4) should be nil")
	}
}

func TestRoleDeckReturnsFreshCopy(t *testing.T) {
	a := RoleDeck(5)
	a[0] = RoleMinion
	b := RoleDeck(5)
	if b[0] == RoleMinion {
		t.Error("RoleDeck must not share backing storage between calls")
	}
}
