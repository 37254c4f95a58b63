// Package toolcache caches tool execution results so identical invocations
// within a short window do not re-run the underlying command.
package toolcache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is how long a cached result stays valid.
const DefaultTTL = 5 * time.Minute

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Enabled  bool    `json:"enabled"`
	Entries  int     `json:"entries"`
	Hits     int     `json:"hits"`
	Misses   int     `json:"misses"`
	Bypasses int     `json:"bypasses"`
	HitRate  float64 `json:"hit_rate"`
	TTL      int     `json:"ttl_seconds"`
}

// Cache is a TTL-bounded result cache keyed by tool name plus canonicalized
// parameters. Expiry is lazy: entries are evicted when looked up past their
// TTL or by an explicit SweepExpired. Not safe for concurrent use.
type Cache[V any] struct {
	ttl     time.Duration
	enabled bool
	entries map[string]entry[V]

	hits     int
	misses   int
	bypasses int

	now func() time.Time
}

func New[V any](ttl time.Duration, enabled bool) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		ttl:     ttl,
		enabled: enabled,
		entries: map[string]entry[V]{},
		now:     time.Now,
	}
}

func (c *Cache[V]) Enabled() bool { return c.enabled }

// key canonicalizes the parameters so that logically identical invocations
// hash the same regardless of construction order. json.Marshal emits map keys
// sorted, which is exactly the canonical form needed.
func key(toolName string, params map[string]any) string {
	raw, err := json.Marshal(params)
	if err != nil {
		// Parameters came off the wire as JSON, so this cannot normally fail;
		// fall back to an uncacheable-in-practice key rather than erroring.
		raw = []byte(fmt.Sprintf("%v", params))
	}
	return toolName + ":" + string(raw)
}

// Get returns the cached value for the invocation if present and unexpired.
// A disabled cache counts a bypass; a missing or expired entry counts a miss.
func (c *Cache[V]) Get(toolName string, params map[string]any) (V, bool) {
	var zero V
	if !c.enabled {
		c.bypasses++
		return zero, false
	}
	k := key(toolName, params)
	e, ok := c.entries[k]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, k)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores a result. No-op when the cache is disabled.
func (c *Cache[V]) Set(toolName string, params map[string]any, value V) {
	if !c.enabled {
		return
	}
	c.entries[key(toolName, params)] = entry[V]{value: value, storedAt: c.now()}
}

// Clear drops all entries and returns how many were removed. Counters are
// kept; they describe the lifetime of the cache, not its current contents.
func (c *Cache[V]) Clear() int {
	removed := len(c.entries)
	c.entries = map[string]entry[V]{}
	return removed
}

// SweepExpired removes entries past their TTL and returns the count removed.
func (c *Cache[V]) SweepExpired() int {
	if !c.enabled {
		return 0
	}
	removed := 0
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache[V]) Stats() Stats {
	stats := Stats{
		Enabled:  c.enabled,
		Entries:  len(c.entries),
		Hits:     c.hits,
		Misses:   c.misses,
		Bypasses: c.bypasses,
		TTL:      int(c.ttl / time.Second),
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total) * 100
	}
	return stats
}

// FormatStats renders the statistics for the /cache stats display.
func (c *Cache[V]) FormatStats() string {
	stats := c.Stats()
	if !stats.Enabled {
		return "Tool result caching: disabled"
	}
	lines := []string{
		"Tool result cache statistics:",
		fmt.Sprintf("  Entries: %d", stats.Entries),
		fmt.Sprintf("  Hits: %d", stats.Hits),
		fmt.Sprintf("  Misses: %d", stats.Misses),
	}
	if stats.Bypasses > 0 {
		lines = append(lines, fmt.Sprintf("  Bypasses: %d", stats.Bypasses))
	}
	if stats.Hits+stats.Misses > 0 {
		lines = append(lines, fmt.Sprintf("  Hit rate: %.1f%%", stats.HitRate))
	}
	lines = append(lines, fmt.Sprintf("  TTL: %ds", stats.TTL))
	return strings.Join(lines, "\n")
}
