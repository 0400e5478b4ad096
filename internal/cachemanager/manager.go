// Package cachemanager provides typed TTL caches on top of go-cache.
package cachemanager

import "time"

// CacheManager is a typed, string-keyed cache with per-entry TTLs.
type CacheManager[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
	Delete(keys ...string)
	Flush()
	ItemCount() int
}
