package memdriver

import "math/rand"

// defaultRNG returns the pseudo-random source used to decide, per packet,
// whether the simulated network drops it. Not cryptographically random;
// this is a test double, not a security boundary.
func defaultRNG() func() float64 {
	r := rand.New(rand.NewSource(1))
	return r.Float64
}
