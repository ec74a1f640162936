package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tessera-mmo/core/internal/logging"
)

// RedisCache is a CacheRepo backed by Redis, with an optional write-behind
// flush to a ColdStorage and pub/sub invalidation via a CacheInvalidator.
// It is the hot-cache tier that sits in front of chunk persistence so a
// region server doesn't hit the chunk store on every read.
type RedisCache struct {
	client      *redis.Client
	config      *CacheConfig
	coldStorage ColdStorage
	invalidator CacheInvalidator

	flush *writeBehindFlusher

	stats latencyStats

	metricsMu sync.RWMutex
	metrics   *CacheMetrics
}

// latencyStats accumulates per-call latency with lock-free counters; reads
// happen rarely (GetMetrics) so paying for a few atomics per op is cheaper
// than a mutex on every Get/Set.
type latencyStats struct {
	sumNanos int64
	count    int64
	maxNanos int64
}

func (s *latencyStats) record(d time.Duration) {
	n := d.Nanoseconds()
	atomic.AddInt64(&s.sumNanos, n)
	atomic.AddInt64(&s.count, 1)
	for {
		cur := atomic.LoadInt64(&s.maxNanos)
		if n <= cur || atomic.CompareAndSwapInt64(&s.maxNanos, cur, n) {
			break
		}
	}
}

func (s *latencyStats) snapshot() (avgMs, maxMs float64) {
	count := atomic.LoadInt64(&s.count)
	if count == 0 {
		return 0, 0
	}
	sum := atomic.LoadInt64(&s.sumNanos)
	max := atomic.LoadInt64(&s.maxNanos)
	return float64(sum) / float64(count) / 1e6, float64(max) / 1e6
}

// NewRedisCache dials Redis and, if coldStorage is non-nil and write-behind
// is enabled in config, starts the background flusher. Unset durations and
// sizes in config fall back to conservative defaults.
func NewRedisCache(config *CacheConfig, coldStorage ColdStorage, invalidator CacheInvalidator) (*RedisCache, error) {
	applyCacheConfigDefaults(config)

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: connect: %w", err)
	}

	c := &RedisCache{
		client:      rdb,
		config:      config,
		coldStorage: coldStorage,
		invalidator: invalidator,
		metrics:     &CacheMetrics{LastUpdate: time.Now()},
	}

	if config.WriteBehindEnabled && coldStorage != nil {
		c.flush = newWriteBehindFlusher(coldStorage, config.WriteBehindInterval, config.WriteBehindBatchSize)
		c.flush.start()
	}

	logging.Info("redis cache connected to %s (write-behind=%v)", config.RedisURL, config.WriteBehindEnabled)
	return c, nil
}

func applyCacheConfigDefaults(config *CacheConfig) {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 30 * time.Second
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = time.Hour
	}
	if config.WriteBehindInterval == 0 {
		config.WriteBehindInterval = 5 * time.Second
	}
	if config.WriteBehindBatchSize == 0 {
		config.WriteBehindBatchSize = 100
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}
}

// Get reads key from Redis. On a miss it falls through to ColdStorage
// (read-through) and, if found there, warms Redis in the background for
// subsequent reads.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer func() { r.stats.record(time.Since(start)) }()
	atomic.AddInt64(&r.metrics.TotalRequests, 1)

	val, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		atomic.AddInt64(&r.metrics.CacheHits, 1)
		r.refreshHitRatio()
		return val, nil
	}
	atomic.AddInt64(&r.metrics.CacheMisses, 1)

	if err != redis.Nil {
		logging.Error("redis get %s: %v", key, err)
		r.refreshHitRatio()
		return nil, fmt.Errorf("redis cache: get: %w", err)
	}

	if r.coldStorage != nil {
		if val, err := r.coldStorage.Load(ctx, key); err == nil {
			go r.warm(key, val)
			r.refreshHitRatio()
			return val, nil
		}
	}

	r.refreshHitRatio()
	return nil, ErrCacheMiss
}

// warm populates Redis with a value just loaded from cold storage, detached
// from the caller's context since the caller has already gotten its answer.
func (r *RedisCache) warm(key string, val []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.Set(ctx, key, val, r.config.DefaultTTL)
}

// Set writes key to Redis and, when write-behind is enabled, enqueues the
// value for an eventual ColdStorage flush. A full queue falls back to a
// synchronous cold-storage write rather than dropping the update.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer func() { r.stats.record(time.Since(start)) }()

	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logging.Error("redis set %s: %v", key, err)
		return fmt.Errorf("redis cache: set: %w", err)
	}

	if r.flush != nil {
		if !r.flush.enqueue(key, value) {
			logging.Warn("write-behind queue full, flushing %s synchronously", key)
			r.flush.storeOne(key, value)
		}
	}
	return nil
}

// Delete removes key from Redis and, if an invalidator is wired, broadcasts
// the invalidation to other shards.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	start := time.Now()
	defer func() { r.stats.record(time.Since(start)) }()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		logging.Error("redis delete %s: %v", key, err)
		return fmt.Errorf("redis cache: delete: %w", err)
	}

	if r.invalidator != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.invalidator.PublishInvalidation(ctx, key); err != nil {
				logging.Error("publish invalidation %s: %v", key, err)
			}
		}()
	}
	return nil
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	defer func() { r.stats.record(time.Since(start)) }()

	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis cache: exists: %w", err)
	}
	return count > 0, nil
}

// Invalidate is an alias for Delete: dropping a key from the hot tier and
// notifying peers is the same operation from this cache's point of view.
func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	return r.Delete(ctx, key)
}

// BatchGet pipelines a Get per key and reports aggregate hit/miss counts.
func (r *RedisCache) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	start := time.Now()
	defer func() { r.stats.record(time.Since(start)) }()
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	atomic.AddInt64(&r.metrics.TotalRequests, int64(len(keys)))

	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(keys))
	for _, key := range keys {
		cmds[key] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		logging.Error("redis batch get pipeline: %v", err)
		return nil, fmt.Errorf("redis cache: batch get: %w", err)
	}

	result := make(map[string][]byte, len(keys))
	var hits, misses int64
	for key, cmd := range cmds {
		val, err := cmd.Bytes()
		switch err {
		case nil:
			result[key] = val
			hits++
		case redis.Nil:
			misses++
		default:
			logging.Error("redis batch get %s: %v", key, err)
			misses++
		}
	}

	atomic.AddInt64(&r.metrics.CacheHits, hits)
	atomic.AddInt64(&r.metrics.CacheMisses, misses)
	r.refreshHitRatio()
	return result, nil
}

// BatchSet pipelines a Set per item and, when write-behind is enabled,
// enqueues every item for flush — items that don't fit are dropped rather
// than written synchronously, to keep a batch call from blocking on cold
// storage one key at a time.
func (r *RedisCache) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	start := time.Now()
	defer func() { r.stats.record(time.Since(start)) }()
	if len(items) == 0 {
		return nil
	}
	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}

	pipe := r.client.Pipeline()
	for key, value := range items {
		pipe.Set(ctx, key, value, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logging.Error("redis batch set pipeline: %v", err)
		return fmt.Errorf("redis cache: batch set: %w", err)
	}

	if r.flush != nil {
		for key, value := range items {
			if !r.flush.enqueue(key, value) {
				logging.Warn("write-behind queue full, dropping batch key: %s", key)
			}
		}
	}
	return nil
}

// Close stops the write-behind flusher (draining its queue first) and
// closes the Redis connection.
func (r *RedisCache) Close() error {
	if r.flush != nil {
		r.flush.stop()
	}
	if err := r.client.Close(); err != nil {
		logging.Error("closing redis connection: %v", err)
		return err
	}
	logging.Info("redis cache closed")
	return nil
}

// GetMetrics returns a snapshot of the counters tracked since startup.
func (r *RedisCache) GetMetrics() *CacheMetrics {
	r.metricsMu.RLock()
	metrics := *r.metrics
	r.metricsMu.RUnlock()

	metrics.LastUpdate = time.Now()
	metrics.AvgLatencyMs, metrics.MaxLatencyMs = r.stats.snapshot()
	if r.flush != nil {
		metrics.PendingWrites = int64(r.flush.pending())
	}
	return &metrics
}

func (r *RedisCache) refreshHitRatio() {
	hits := atomic.LoadInt64(&r.metrics.CacheHits)
	misses := atomic.LoadInt64(&r.metrics.CacheMisses)
	total := hits + misses
	if total == 0 {
		return
	}
	r.metricsMu.Lock()
	r.metrics.HitRatio = float64(hits) / float64(total)
	r.metricsMu.Unlock()
}
