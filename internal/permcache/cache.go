// Package permcache memoizes authorization outcomes per identity for a bounded time.
package permcache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultTTL is how long a fetched result is honored without a re-check.
	DefaultTTL = 5 * time.Minute
	// DefaultCapacity bounds the number of identities held at once.
	DefaultCapacity = 10_000
)

// Kind names the authorization question an entry answers.
type Kind string

// KindElevatedRole caches whether the identity holds an elevated role.
const KindElevatedRole Kind = "is-elevated-role"

var kinds = []Kind{KindElevatedRole}

// Key builds the composite cache key for identity and kind.
func Key(identity string, kind Kind) string {
	return string(kind) + ":" + strings.TrimSpace(identity)
}

// identityOf recovers the identity from a key built by Key. Other keys stand for themselves.
func identityOf(key string) string {
	if _, identity, ok := strings.Cut(key, ":"); ok {
		return identity
	}
	return key
}

// Entry is the last known outcome for a key.
type Entry struct {
	Result    bool
	FetchedAt time.Time
}

// Cache holds entries until they are overwritten, forgotten or the whole cache is cleared.
// Expired entries read as absent but stay in place until the next Set for their key.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, Entry]
	ttl      time.Duration
	now      func() time.Time
	capacity int

	// seq advances on every Clear and Forget. An identity's epoch is the larger of floor
	// and its forgotten mark.
	seq       uint64
	floor     uint64
	forgotten map[string]uint64
}

// Option configures Cache.
type Option func(*config)

type config struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCapacity overrides DefaultCapacity. Least recently used keys are dropped beyond it.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *config) {
		if fn != nil {
			c.now = fn
		}
	}
}

// New constructs an empty cache.
func New(opts ...Option) *Cache {
	cfg := config{ttl: DefaultTTL, capacity: DefaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	entries, err := lru.New[string, Entry](cfg.capacity)
	if err != nil {
		// only reachable with a non-positive size, which the options rule out
		panic(err)
	}
	return &Cache{
		entries:   entries,
		ttl:       cfg.ttl,
		now:       cfg.now,
		capacity:  cfg.capacity,
		forgotten: make(map[string]uint64),
	}
}

// TTL returns the validity window of entries.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Now returns the cache's current time.
func (c *Cache) Now() time.Time { return c.now() }

// Get returns the entry for key if it is still valid.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(key)
	if !ok || c.now().Sub(e.FetchedAt) >= c.ttl {
		return Entry{}, false
	}
	return e, true
}

// Set records result for key as fetched at fetchedAt.
func (c *Cache) Set(key string, result bool, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, Entry{Result: result, FetchedAt: fetchedAt})
}

// Epoch identifies the generation of identity's entries. Clear advances it for every
// identity, Forget only for the one forgotten.
func (c *Cache) Epoch(identity string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochLocked(strings.TrimSpace(identity))
}

func (c *Cache) epochLocked(identity string) uint64 {
	if mark, ok := c.forgotten[identity]; ok && mark > c.floor {
		return mark
	}
	return c.floor
}

// SetIfEpoch is Set that is dropped when the key's identity was cleared or forgotten after
// epoch was read. It keeps a lookup that started before a logout from repopulating the
// cache afterwards.
func (c *Cache) SetIfEpoch(epoch uint64, key string, result bool, fetchedAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epochLocked(identityOf(key)) != epoch {
		return false
	}
	c.entries.Add(key, Entry{Result: result, FetchedAt: fetchedAt})
	return true
}

// Clear removes every entry at once.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.seq++
	c.floor = c.seq
	clear(c.forgotten)
}

// Forget removes the entries of one identity and leaves everyone else's in place.
func (c *Cache) Forget(identity string) {
	identity = strings.TrimSpace(identity)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kind := range kinds {
		c.entries.Remove(Key(identity, kind))
	}
	c.seq++
	c.forgotten[identity] = c.seq
	if len(c.forgotten) > c.capacity {
		// raising the floor only drops in-flight writes; stored entries stay
		c.floor = c.seq
		clear(c.forgotten)
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
