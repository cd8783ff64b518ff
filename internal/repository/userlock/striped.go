// Package userlock serializes per-user read-modify-write cycles with a fixed
// set of mutexes, so memory stays bounded however many users appear.
package userlock

import (
	"hash/fnv"
	"sync"
)

// DefaultStripes is the stripe count used by New for non-positive n.
const DefaultStripes = 64

// Striped maps keys onto a fixed pool of mutexes. Two keys may share a
// stripe; a key always gets the same one.
type Striped struct {
	stripes []sync.Mutex
}

// New returns a pool of n stripes.
func New(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

// For returns the mutex guarding key.
func (s *Striped) For(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%uint32(len(s.stripes))]
}

// Len reports the number of stripes.
func (s *Striped) Len() int { return len(s.stripes) }
