package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL       = 72 * time.Hour
	DefaultKeyPrefix = "billing:webhook:event:"
)

// Store is a durable claim registry. Claim returns true only for the first
// caller to claim id within the store's retention window.
type Store interface {
	Claim(ctx context.Context, id string) (bool, error)
}

// RedisStore claims ids with SET NX so concurrent replicas agree on a
// single winner.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store on client. A zero ttl uses DefaultTTL.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: DefaultKeyPrefix, ttl: ttl}
}

// WithPrefix returns a copy of the store writing keys under prefix.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	cp := *s
	cp.prefix = prefix
	return &cp
}

func (s *RedisStore) Claim(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("idempotency: empty id")
	}
	return s.client.SetNX(ctx, s.prefix+id, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
}

// TTL reports how long claims are retained.
func (s *RedisStore) TTL() time.Duration {
	return s.ttl
}
