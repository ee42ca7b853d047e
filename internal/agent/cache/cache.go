// Package cache memoizes idempotent action results, keyed by
// content-addressed invocation hashes.
package cache

import (
	"path"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
)

const (
	// DefaultTTL is how long a cached action result remains valid.
	DefaultTTL = 5 * time.Minute
	// DefaultCapacity bounds the number of retained entries.
	DefaultCapacity = 1000
	// DefaultSweepInterval is how often the background sweeper runs.
	DefaultSweepInterval = time.Minute
)

// Entry holds one cached action result.
type Entry struct {
	Key        string
	Value      map[string]any
	InsertedAt time.Time
	TTL        time.Duration
}

// Expired reports whether the entry has outlived its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.InsertedAt) >= e.TTL
}

// Config tunes the action cache.
type Config struct {
	TTL      time.Duration
	Capacity int
	Logger   logging.Logger
}

// Cache is a process-wide, mutex-serialized result cache. Eviction is LRU by
// insertion time: reads never promote, so the underlying LRU's recency order
// equals insertion order and overflow always discards the oldest entry.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, Entry]
	ttl     time.Duration
	logger  logging.Logger
	clock   func() time.Time

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New creates an action cache with the given configuration.
func New(config Config) *Cache {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	entries, err := lru.New[string, Entry](config.Capacity)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		panic(err)
	}
	return &Cache{
		entries:   entries,
		ttl:       config.TTL,
		logger:    logging.OrNop(config.Logger),
		clock:     time.Now,
		stopSweep: make(chan struct{}),
	}
}

// Get returns the cached value for key when present and fresh. Expired
// entries are evicted on the spot.
func (c *Cache) Get(key string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Peek(key)
	if !ok {
		return nil, false
	}
	if entry.Expired(c.clock()) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.Value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value map[string]any) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *Cache) SetWithTTL(key string, value map[string]any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, Entry{
		Key:        key,
		Value:      value,
		InsertedAt: c.clock(),
		TTL:        ttl,
	})
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// DeleteByPattern removes every key matching the shell-style pattern
// (path.Match syntax) and returns how many were removed.
func (c *Cache) DeleteByPattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.entries.Keys() {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// CleanupExpired evicts every expired entry and returns how many it removed.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for _, key := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(key); ok && entry.Expired(now) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// StartSweeper launches a background ticker that calls CleanupExpired until
// Stop is called. Starting twice is a no-op.
func (c *Cache) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	c.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := c.CleanupExpired(); n > 0 {
						c.logger.Debug("Cache sweep removed %d expired entries", n)
					}
				case <-c.stopSweep:
					return
				}
			}
		}()
	})
}

// Stop terminates the background sweeper.
func (c *Cache) Stop() {
	select {
	case <-c.stopSweep:
	default:
		close(c.stopSweep)
	}
}
