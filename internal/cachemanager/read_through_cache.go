package cachemanager

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// ReadThroughCache loads missing entries with fn. Concurrent misses on the
// same key share one call to fn.
type ReadThroughCache[V any, I any] struct {
	cache           CacheManager[V]
	fn              func(ctx context.Context, input I) (V, error)
	shouldSkipCache bool
	group           singleflight.Group
}

// NewReadThroughCache wraps cache. When shouldSkipCache is true every Get
// calls fn directly.
func NewReadThroughCache[V any, I any](
	cache CacheManager[V],
	fn func(ctx context.Context, input I) (V, error),
	shouldSkipCache bool,
) *ReadThroughCache[V, I] {
	return &ReadThroughCache[V, I]{
		cache:           cache,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
	}
}

// Get returns the cached value for key or loads it from input. Errors are
// not cached.
func (r *ReadThroughCache[V, I]) Get(ctx context.Context, key string, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}
	if value, ok := r.cache.Get(key); ok {
		return value, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		value, err := r.fn(ctx, input)
		if err != nil {
			return value, err
		}
		r.cache.Set(key, value, ttl)
		return value, nil
	})
	value, _ := v.(V)
	return value, err
}

// Invalidate drops key so the next Get reloads it.
func (r *ReadThroughCache[V, I]) Invalidate(keys ...string) {
	r.cache.Delete(keys...)
}
