package avalon

// MinPlayers and MaxPlayers bound the supported table sizes.
const (
	MinPlayers = 5
	MaxPlayers = 10
)

// Rounds is the number of missions per game.
const Rounds = 5

// teamSizes maps player count to the mission team size per round.
var teamSizes = map[int][Rounds]int{
	5:  {2, 3, 2, 3, 3},
	6:  {2, 3, 4, 3, 4},
	7:  {2, 3, 3, 4, 4},
	8:  {3, 4, 4, 5, 5},
	9:  {3, 4, 4, 5, 5},
	10: {3, 4, 4, 5, 5},
}

// failRequirements maps player count to the number of fail votes needed to
// fail each round's mission. Round 4 needs two fails at seven or more players.
var failRequirements = map[int][Rounds]int{
	5:  {1, 1, 1, 1, 1},
	6:  {1, 1, 1, 1, 1},
	7:  {1, 1, 1, 2, 1},
	8:  {1, 1, 1, 2, 1},
	9:  {1, 1, 1, 2, 1},
	10: {1, 1, 1, 2, 1},
}

// evilCounts maps player count to the number of evil players at the table.
var evilCounts = map[int]int{
	5:  2,
	6:  2,
	7:  3,
	8:  3,
	9:  3,
	10: 4,
}

// roleComposition holds the fixed role set dealt at a given player count.
type roleComposition struct {
	Good []Role
	Evil []Role
}

var roleCompositions = map[int]roleComposition{
	5: {
		Good: []Role{RoleMerlin, RolePercival, RoleLoyalServant},
		Evil: []Role{RoleMorgana, RoleAssassin},
	},
	6: {
		Good: []Role{RoleMerlin, RolePercival, RoleLoyalServant, RoleLoyalServant},
		Evil: []Role{RoleMorgana, RoleAssassin},
	},
	7: {
		Good: []Role{RoleMerlin, RolePercival, RoleLoyalServant, RoleLoyalServant},
		Evil: []Role{RoleMorgana, RoleAssassin, RoleOberon},
	},
	8: {
		Good: []Role{RoleMerlin, RolePercival, RoleLoyalServant, RoleLoyalServant, RoleLoyalServant},
		Evil: []Role{RoleMorgana, RoleAssassin, RoleMinion},
	},
	9: {
		Good: []Role{RoleMerlin, RolePercival, RoleLoyalServant, RoleLoyalServant, RoleLoyalServant, RoleLoyalServant},
		Evil: []Role{RoleMorgana, RoleAssassin, RoleMordred},
	},
	10: {
		Good: []Role{RoleMerlin, RolePercival, RoleLoyalServant, RoleLoyalServant, RoleLoyalServant, RoleLoyalServant},
		Evil: []Role{RoleMorgana, RoleAssassin, RoleMordred, RoleOberon},
	},
}

// TeamSize returns the required mission team size for the given player count
// and 1-based round. Returns 0 for unsupported inputs.
func TeamSize(playerCount, round int) int {
	sizes, ok := teamSizes[playerCount]
	if !ok || round < 1 || round > Rounds {
		return 0
	}
	return sizes[round-1]
}

// FailRequirement returns how many fail votes sink the mission for the given
// player count and 1-based round. Defaults to 1 for unsupported inputs.
func FailRequirement(playerCount, round int) int {
	reqs, ok := failRequirements[playerCount]
	if !ok || round < 1 || round > Rounds {
		return 1
	}
	return reqs[round-1]
}

// EvilCount returns the number of evil seats for the given player count.
func EvilCount(playerCount int) int {
	return evilCounts[playerCount]
}

// RoleDeck returns the full role set for the given player count, good roles
// first. The slice is a fresh copy safe for shuffling.
func RoleDeck(playerCount int) []Role {
	comp, ok := roleCompositions[playerCount]
	if !ok {
		return nil
	}
	deck := make([]Role, 0, len(comp.Good)+len(comp.Evil))
	deck = append(deck, comp.Good...)
	deck = append(deck, comp.Evil...)
	return deck
}
