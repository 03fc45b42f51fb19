// Package cache implements the two-tier cache: a local in-process LRU tier
// backed by an optional remote tier, with promotion on remote hits, per-tier
// TTL clamping, transparent compression of large remote values and
// per-tier statistics.
package cache

import (
	"context"
	"time"
)

// Store is the byte-oriented, TTL-aware contract both tiers satisfy.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
}

// RemoteStore is the remote tier contract. The remote store is an external
// shared resource (Redis, Memcached, a cache table); consistency across
// instances is whatever it provides. DeleteByPattern takes a glob pattern
// with a single trailing or leading '*'.
type RemoteStore interface {
	Store
	DeleteByPattern(ctx context.Context, pattern string) error
}

// Level identifies which tier served a Get.
type Level int

const (
	LevelMiss Level = iota
	LevelLocal
	LevelRemote
)

func (l Level) String() string {
	switch l {
	case LevelLocal:
		return "local"
	case LevelRemote:
		return "remote"
	default:
		return "miss"
	}
}
