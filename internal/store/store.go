// Package store defines the key/value seam the leaderboard is built on:
// sorted sets, hashes, sets and fire-and-forget pub/sub.
package store

import "context"

// ScoredMember is one sorted-set member with its score
type ScoredMember struct {
	Member string
	Score  float64
}

// Handler receives pub/sub payloads
type Handler func(payload []byte)

// Store is implemented by redisstore for production and memstore for tests
// and single-process deployments. Lookups of missing members report ok=false
// rather than an error.
type Store interface {
	// Sorted sets
	ZAdd(ctx context.Context, key, member string, score float64) error
	ZRevRank(ctx context.Context, key, member string) (rank int64, ok bool, err error)
	ZScore(ctx context.Context, key, member string) (score float64, ok bool, err error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Hashes
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (value string, ok bool, err error)
	HDel(ctx context.Context, key, field string) error

	// Sets
	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	// Pub/sub
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler Handler) (unsubscribe func(), err error)
}
