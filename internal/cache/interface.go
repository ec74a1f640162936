// Package cache implements the hot-cache layer in front of chunk cold
// storage: a Redis-backed CacheRepo with an optional write-behind flush to
// a ColdStorage (internal/storage.ChunkStore, adapted to this interface by
// internal/storage.NewColdStorageAdapter).
package cache

import (
	"context"
	"time"
)

// CacheRepo is a generic byte-keyed, byte-valued cache with an optional
// cold-storage fallback.
type CacheRepo interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Invalidate(ctx context.Context, key string) error
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)
	BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	Close() error
	GetMetrics() *CacheMetrics
}

// ColdStorage is the persistent store a cache falls back to on a miss and
// write-behind flushes to.
type ColdStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	BatchLoad(ctx context.Context, keys []string) (map[string][]byte, error)
	BatchStore(ctx context.Context, items map[string][]byte) error
	Close() error
}

// CacheInvalidator propagates invalidations over pub/sub. Nothing in this
// module implements it (internal/regional's ShardLink does not); the server
// passes nil, as a single-shard deployment can.
type CacheInvalidator interface {
	PublishInvalidation(ctx context.Context, key string) error
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error
	Close() error
}

// InvalidationHandler handles an inbound invalidation notification.
type InvalidationHandler func(key string) error

// CacheMetrics holds cache performance counters, returned by GetMetrics;
// internal/observability does not export them.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	WriteBehindLagMs int64 `json:"write_behind_lag_ms"`
	PendingWrites    int64 `json:"pending_writes"`

	LastUpdate time.Time `json:"last_update"`
}

// CacheConfig configures the Redis connection and write-behind behavior.
type CacheConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int

	DefaultTTL time.Duration
	MaxTTL     time.Duration

	WriteBehindEnabled   bool
	WriteBehindInterval  time.Duration
	WriteBehindBatchSize int

	MaxConnections int
	PoolTimeout    time.Duration
}

var (
	ErrCacheMiss     = NewCacheError("cache miss")
	ErrCacheTimeout  = NewCacheError("cache timeout")
	ErrCacheConflict = NewCacheError("cache conflict")
	ErrInvalidKey    = NewCacheError("invalid key")
)

// CacheError is a sentinel cache error.
type CacheError struct {
	Message string
}

func (e *CacheError) Error() string { return e.Message }

func NewCacheError(message string) *CacheError {
	return &CacheError{Message: message}
}

// IsCacheMiss reports whether err is ErrCacheMiss.
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}
