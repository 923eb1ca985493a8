package reminder

import (
	"math/rand"
	"time"
)

const (
	defaultIDRange = 1000
	maxRandomDraws = 16
)

// idAllocator draws short random ids and checks them against the ids in use.
// After maxRandomDraws collisions it walks the range from a random offset, so
// it only fails when every id in [1, limit) is taken.
type idAllocator struct {
	rng   *rand.Rand
	limit int64
}

func newIDAllocator(limit int, seed int64) *idAllocator {
	if limit < 2 {
		limit = defaultIDRange
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &idAllocator{rng: rand.New(rand.NewSource(seed)), limit: int64(limit)}
}

func (a *idAllocator) next(taken func(ID) bool) (ID, error) {
	span := a.limit - 1
	for i := 0; i < maxRandomDraws; i++ {
		id := ID(1 + a.rng.Int63n(span))
		if !taken(id) {
			return id, nil
		}
	}
	start := a.rng.Int63n(span)
	for i := int64(0); i < span; i++ {
		id := ID(1 + (start+i)%span)
		if !taken(id) {
			return id, nil
		}
	}
	return 0, ErrIdentitySpaceExhausted
}
