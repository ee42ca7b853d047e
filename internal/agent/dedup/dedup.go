// Package dedup suppresses duplicate agent work over a short window using a
// request-content fingerprint.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultTTL is the window inside which an identical request is served
	// from cache.
	DefaultTTL = 5 * time.Second
	// DefaultCapacity bounds the number of remembered responses.
	DefaultCapacity = 512
	// recentMessagesConsidered is how many trailing conversation messages
	// participate in the fingerprint.
	recentMessagesConsidered = 3
)

// Fingerprint identifies a request for deduplication purposes.
type Fingerprint struct {
	Message        string
	UserID         string
	TripID         string
	DryRun         bool
	AllowWebbrowse bool
	RecentMessages []string
}

// Hash returns the stable request-content hash.
func (f Fingerprint) Hash() string {
	recent := f.RecentMessages
	if len(recent) > recentMessagesConsidered {
		recent = recent[len(recent)-recentMessagesConsidered:]
	}
	var b strings.Builder
	b.WriteString(f.Message)
	b.WriteByte(0)
	b.WriteString(f.UserID)
	b.WriteByte(0)
	b.WriteString(f.TripID)
	b.WriteByte(0)
	b.WriteString(strconv.FormatBool(f.DryRun))
	b.WriteByte(0)
	b.WriteString(strconv.FormatBool(f.AllowWebbrowse))
	for _, msg := range recent {
		b.WriteByte(0)
		b.WriteString(msg)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

type entry struct {
	value      any
	insertedAt time.Time
}

// Cache remembers recent responses keyed by request hash.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, entry]
	ttl     time.Duration
	clock   func() time.Time
}

// NewCache creates a dedup cache; zero values fall back to defaults.
func NewCache(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[string, entry](capacity)
	if err != nil {
		panic(err)
	}
	return &Cache{entries: entries, ttl: ttl, clock: time.Now}
}

// Lookup returns the remembered response for hash when still inside the TTL.
func (c *Cache) Lookup(hash string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(hash)
	if !ok {
		return nil, false
	}
	if c.clock().Sub(e.insertedAt) >= c.ttl {
		c.entries.Remove(hash)
		return nil, false
	}
	return e.value, true
}

// Store remembers value under hash.
func (c *Cache) Store(hash string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(hash, entry{value: value, insertedAt: c.clock()})
}
