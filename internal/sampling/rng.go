package sampling

import (
	"hash/fnv"
	"math/rand/v2"
)

// NewSource returns the random source used to sample scenarios of one model.
//
// Derivation:
//   - seed == 0: an unseeded source (fresh entropy every run)
//   - otherwise: PCG seeded with (seed XOR fnv1a64(stream), seed)
//
// Keying the stream by model id isolates models from each other: publishing
// model B does not shift the sequence drawn for model A under the same seed.
//
// Thread-safety: the returned source is NOT safe for concurrent use.
func NewSource(seed int64, stream string) rand.Source {
	if seed == 0 {
		return rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return rand.NewPCG(uint64(seed^fnv1a64(stream)), uint64(seed))
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
