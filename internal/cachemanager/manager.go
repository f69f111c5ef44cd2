// Package cachemanager memoizes expensive computations behind a TTL cache.
// The chat renderer uses it to avoid re-rendering messages whose content
// hasn't changed between frames.
package cachemanager

import (
	"context"
	"time"
)

type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}
