package idempotency

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
)

// Guard deduplicates deliveries. The recency set is a cache in front of the
// store; with no store configured it is the only source of truth.
type Guard struct {
	recent *RecencySet
	store  Store
}

// NewGuard creates a guard. store may be nil.
func NewGuard(recent *RecencySet, store Store) *Guard {
	if recent == nil {
		recent = NewRecencySet(DefaultLimit)
	}
	return &Guard{recent: recent, store: store}
}

func (g *Guard) Seen(id string) bool {
	return g.recent.Seen(id)
}

func (g *Guard) Remember(id string) {
	g.recent.Remember(id)
}

// Claim returns true when id has not been processed before and marks it as
// processed. A failing store is logged and the decision falls back to the
// in-memory set.
func (g *Guard) Claim(ctx context.Context, id string) bool {
	if g.recent.Seen(id) {
		return false
	}

	if g.store != nil {
		fresh, err := g.store.Claim(ctx, id)
		if err != nil {
			log.Warnf("[Idempotency] Durable claim for %s failed, using memory only: %v", id, err)
		} else if !fresh {
			g.recent.Remember(id)
			return false
		}
	}

	return g.recent.add(id)
}

// Recent exposes the in-memory set, mostly for inspection in tests.
func (g *Guard) Recent() *RecencySet {
	return g.recent
}
