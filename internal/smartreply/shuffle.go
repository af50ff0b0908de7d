package smartreply

import (
	"math/rand/v2"
	"sync"
)

// Source yields uniformly distributed integers in [0, n).
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// lockedSource makes a seeded generator safe for concurrent callers.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// NewSeededSource returns a reproducible Source. Two sources created with the
// same seed produce the same permutations.
func NewSeededSource(seed uint64) Source {
	return &lockedSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Permute shuffles items in place with Fisher-Yates, so every permutation is
// equally likely given a uniform src.
func Permute(items []string, src Source) {
	for i := len(items) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// head returns a copy of the first count items of list.
func head(list []string, count int) []string {
	if count <= 0 {
		return []string{}
	}
	if count > len(list) {
		count = len(list)
	}
	out := make([]string, count)
	copy(out, list[:count])
	return out
}
