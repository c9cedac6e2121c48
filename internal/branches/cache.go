package branches

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const cacheKeyPrefix = "branch:"

// Cache keeps single branches in Redis. A nil Cache is a no-op so callers
// never need to check whether caching is enabled.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache builds a cache on client. ttl <= 0 disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(id primitive.ObjectID) string {
	return cacheKeyPrefix + id.Hex()
}

// Get returns the cached branch. The boolean is false on a miss.
func (c *Cache) Get(ctx context.Context, id primitive.ObjectID) (Branch, bool, error) {
	if c == nil {
		return Branch{}, false, nil
	}
	raw, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		recordCacheMiss()
		return Branch{}, false, nil
	}
	if err != nil {
		return Branch{}, false, fmt.Errorf("branches: cache get: %w", err)
	}
	var branch Branch
	if err := bson.Unmarshal(raw, &branch); err != nil {
		// Corrupt entries are treated as misses and overwritten on the next fill.
		recordCacheMiss()
		return Branch{}, false, nil
	}
	recordCacheHit()
	return branch, true, nil
}

// setAttempts bounds the optimistic retries of Set under contention.
const setAttempts = 3

// Set stores branch under its id unless the cache already holds a copy with a
// later updatedAt.
func (c *Cache) Set(ctx context.Context, branch Branch) error {
	if c == nil {
		return nil
	}
	raw, err := bson.Marshal(branch)
	if err != nil {
		return fmt.Errorf("branches: cache encode: %w", err)
	}
	key := cacheKey(branch.ID)
	write := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var cached Branch
			if bson.Unmarshal(current, &cached) == nil && cached.UpdatedAt.After(branch.UpdatedAt) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, c.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < setAttempts; attempt++ {
		err = c.client.Watch(ctx, write, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("branches: cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached copy of id.
func (c *Cache) Invalidate(ctx context.Context, id primitive.ObjectID) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("branches: cache invalidate: %w", err)
	}
	return nil
}

var (
	cacheMetricsMu          sync.Mutex
	cacheMetricsInitialized bool
	cacheMetricsError       error

	cacheHitCounter  prometheus.Counter
	cacheMissCounter prometheus.Counter
)

// SetupCacheMetrics registers the branch cache counters. Only the first call
// registers; later calls return the first outcome.
func SetupCacheMetrics(reg prometheus.Registerer) error {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if cacheMetricsInitialized {
		return cacheMetricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "branchdesk_branch_cache_hits_total",
		Help: "Number of branch lookups served from Redis.",
	})
	misses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "branchdesk_branch_cache_miss_total",
		Help: "Number of branch lookups that fell through to MongoDB.",
	})

	hits, cacheMetricsError = registerCounter(reg, hits)
	if cacheMetricsError == nil {
		misses, cacheMetricsError = registerCounter(reg, misses)
	}
	if cacheMetricsError == nil {
		cacheHitCounter, cacheMissCounter = hits, misses
	}
	cacheMetricsInitialized = true
	return cacheMetricsError
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(prometheus.Counter)
			if !ok {
				return nil, fmt.Errorf("branches cache metrics: unexpected collector type %T", already.ExistingCollector)
			}
			return existing, nil
		}
		return nil, err
	}
	return c, nil
}

func recordCacheHit() {
	if cacheHitCounter != nil {
		cacheHitCounter.Inc()
	}
}

func recordCacheMiss() {
	if cacheMissCounter != nil {
		cacheMissCounter.Inc()
	}
}
