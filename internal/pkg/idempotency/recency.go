// Package idempotency remembers which webhook deliveries were already
// processed. A bounded in-memory recency set answers the hot path; an
// optional durable Store survives restarts and is shared across replicas.
package idempotency

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLimit bounds the in-memory set when no limit is configured.
const DefaultLimit = 1000

// RecencySet is a bounded set of ids. Once an insert pushes it over the
// limit, the oldest half (by insertion order) is dropped in one go.
type RecencySet struct {
	mu    sync.Mutex
	limit int
	ids   *lru.Cache[string, struct{}]
}

// NewRecencySet creates a set bounded to limit entries. Non-positive limits
// fall back to DefaultLimit.
func NewRecencySet(limit int) *RecencySet {
	if limit <= 0 {
		limit = DefaultLimit
	}
	// One spare slot so the cache never evicts on its own; trimming is ours.
	ids, err := lru.New[string, struct{}](limit + 1)
	if err != nil {
		panic(err)
	}
	return &RecencySet{limit: limit, ids: ids}
}

// Seen reports whether id is currently remembered. It does not refresh the
// entry's position.
func (s *RecencySet) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids.Contains(id)
}

// Remember records id. Re-remembering an id keeps its original position.
func (s *RecencySet) Remember(id string) {
	s.add(id)
}

// add records id and reports whether it was absent before.
func (s *RecencySet) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids.Contains(id) {
		return false
	}
	s.ids.Add(id, struct{}{})

	if s.ids.Len() > s.limit {
		drop := s.ids.Len() / 2
		for i := 0; i < drop; i++ {
			s.ids.RemoveOldest()
		}
	}
	return true
}

func (s *RecencySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids.Len()
}

func (s *RecencySet) Limit() int {
	return s.limit
}
