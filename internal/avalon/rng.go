package avalon

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
)

// NewRand returns a rand.Rand seeded from the operating system's CSPRNG.
// Role deals, seating, leader picks, and mission-vote shuffles all draw from
// the rng handed to New, so production games are not predictable from
// wall-clock seeds.
func NewRand() *rand.Rand {
	var seed [8]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("avalon: cannot read crypto/rand: " + err.Error())
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))
}
