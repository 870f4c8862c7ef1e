package session

import "math/rand"

// shuffled returns a uniformly random permutation of in, leaving the
// input untouched. Inputs of length < 2 come back as a plain copy.
func shuffled[T any](rnd *rand.Rand, in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	if len(out) < 2 {
		return out
	}
	rnd.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
