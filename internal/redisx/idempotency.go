package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore records which events a service has already applied.
// Backed by redis SETNX so concurrent consumers agree on a single winner.
type IdempotencyStore struct {
	rdb     *redis.Client
	service string
}

func NewIdempotencyStore(rdb *redis.Client, service string) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, service: service}
}

// MarkOnce returns true exactly once per id. Replays return false.
func (s *IdempotencyStore) MarkOnce(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf(KeyDedup, s.service, id)
	return s.rdb.SetNX(ctx, key, "1", TTLDedup).Result()
}

// Seen reports whether the id was already marked, without claiming it.
func (s *IdempotencyStore) Seen(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf(KeyDedup, s.service, id)
	return Exists(ctx, s.rdb, key)
}
