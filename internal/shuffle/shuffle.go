// Package shuffle orders a session's cards reproducibly from a string seed,
// so a resumed session rebuilds the exact order without stored randomness.
package shuffle

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// Linear congruential generator constants.
const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// Shuffle returns a permutation of ids. The input slice is not modified.
//
// With a non-empty seed the permutation is a pure function of (ids, seed):
// calling it twice yields the same order. An empty seed falls back to a
// non-deterministic Fisher-Yates shuffle.
func Shuffle(ids []uuid.UUID, seed string) []uuid.UUID {
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)

	if seed == "" {
		rand.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
		return out
	}

	state := Hash(seed)
	for i := len(out) - 1; i > 0; i-- {
		state = (state*lcgMultiplier + lcgIncrement) % lcgModulus
		j := int(float64(state) / lcgModulus * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Hash folds seed into a non-negative integer using the 31-multiplier string
// hash with 32-bit wraparound, then takes its absolute value.
func Hash(seed string) int64 {
	var h int32
	for _, c := range seed {
		h = 31*h + c
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}
