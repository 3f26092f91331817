package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PageCache keeps fetched watch pages in two tiers: L1 in-memory and an
// optional L2 Redis. A nil *PageCache behaves as a permanently empty cache.
type PageCache struct {
	l1         sync.Map      // key → *pageEntry
	rdb        *redis.Client // nil if Redis unavailable
	ttl        time.Duration
	maxEntries int
	stop       chan struct{}
	stopOnce   sync.Once
}

type pageEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewPageCache builds the cache. redisURL can be empty to disable L2;
// cleanupInterval <= 0 disables the background sweep.
func NewPageCache(redisURL string, ttl time.Duration, maxEntries int, cleanupInterval time.Duration) *PageCache {
	c := &PageCache{ttl: ttl, maxEntries: maxEntries, stop: make(chan struct{})}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Warn("page cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("page cache: redis unreachable, L2 disabled", slog.Any("error", err))
				_ = rdb.Close()
			} else {
				c.rdb = rdb
				slog.Info("page cache: L2 redis connected")
			}
		}
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// CacheKey generates a deterministic key from parts.
func CacheKey(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("ytl:%x", h[:16])
}

func pageKey(url string) string { return CacheKey("page", url) }

// Get returns the cached body for url. L1 is checked first; an L2 hit is
// copied back into L1.
func (c *PageCache) Get(ctx context.Context, url string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	key := pageKey(url)

	if v, ok := c.l1.Load(key); ok {
		e := v.(*pageEntry)
		if time.Now().Before(e.expiresAt) {
			metrics.CacheHits.Add(1)
			return e.data, true
		}
		c.l1.Delete(key)
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			c.l1.Store(key, &pageEntry{data: data, expiresAt: time.Now().Add(c.ttl)})
			metrics.CacheHits.Add(1)
			return data, true
		}
	}

	metrics.CacheMisses.Add(1)
	return nil, false
}

// Set stores body for url in both tiers.
func (c *PageCache) Set(ctx context.Context, url string, body []byte) {
	if c == nil {
		return
	}
	key := pageKey(url)
	c.evictIfNeeded()
	c.l1.Store(key, &pageEntry{data: body, expiresAt: time.Now().Add(c.ttl)})

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, body, c.ttl).Err(); err != nil {
			slog.Debug("page cache: redis set failed", slog.Any("error", err))
		}
	}
}

// Close stops the cleanup loop and releases the Redis connection.
func (c *PageCache) Close() error {
	if c == nil {
		return nil
	}
	c.stopOnce.Do(func() { close(c.stop) })
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// evictIfNeeded removes expired entries, then the oldest ones, until there is
// room for one more entry.
func (c *PageCache) evictIfNeeded() {
	if c.maxEntries <= 0 {
		return
	}
	count := 0
	c.l1.Range(func(_, _ any) bool { count++; return true })
	if count < c.maxEntries {
		return
	}

	now := time.Now()
	c.l1.Range(func(k, v any) bool {
		if now.After(v.(*pageEntry).expiresAt) {
			c.l1.Delete(k)
			count--
		}
		return true
	})

	for count >= c.maxEntries {
		var oldestKey any
		var oldestTime time.Time
		c.l1.Range(func(k, v any) bool {
			e := v.(*pageEntry)
			if oldestKey == nil || e.expiresAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = e.expiresAt
			}
			return true
		})
		if oldestKey == nil {
			return
		}
		c.l1.Delete(oldestKey)
		count--
	}
}

func (c *PageCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.l1.Range(func(k, v any) bool {
				if now.After(v.(*pageEntry).expiresAt) {
					c.l1.Delete(k)
				}
				return true
			})
		}
	}
}

func (c *PageCache) len() int {
	n := 0
	c.l1.Range(func(_, _ any) bool { n++; return true })
	return n
}
