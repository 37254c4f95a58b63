package toolcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	Output string
}

func TestGetMissThenHit(t *testing.T) {
	c := New[fakeResult](time.Minute, true)

	_, ok := c.Get("nmap", map[string]any{"target": "example.com"})
	assert.False(t, ok)

	c.Set("nmap", map[string]any{"target": "example.com"}, fakeResult{Output: "80/tcp open"})

	got, ok := c.Get("nmap", map[string]any{"target": "example.com"})
	require.True(t, ok)
	assert.Equal(t, "80/tcp open", got.Output)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
	assert.InDelta(t, 50.0, stats.HitRate, 0.01)
}

func TestKeyIgnoresParameterOrder(t *testing.T) {
	c := New[fakeResult](time.Minute, true)

	c.Set("sqlmap", map[string]any{"url": "http://example.com", "depth": 2}, fakeResult{Output: "x"})

	// Same parameters constructed in a different order hit the same entry.
	_, ok := c.Get("sqlmap", map[string]any{"depth": 2, "url": "http://example.com"})
	assert.True(t, ok)
}

func TestDifferentToolsDoNotCollide(t *testing.T) {
	c := New[fakeResult](time.Minute, true)
	params := map[string]any{"target": "example.com"}

	c.Set("nmap", params, fakeResult{Output: "nmap out"})
	_, ok := c.Get("nikto", params)
	assert.False(t, ok)
}

func TestTTLExpiryEvicts(t *testing.T) {
	c := New[fakeResult](time.Minute, true)
	current := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return current }

	c.Set("nmap", map[string]any{"target": "example.com"}, fakeResult{Output: "x"})

	current = current.Add(59 * time.Second)
	_, ok := c.Get("nmap", map[string]any{"target": "example.com"})
	assert.True(t, ok)

	current = current.Add(2 * time.Second)
	_, ok = c.Get("nmap", map[string]any{"target": "example.com"})
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries, "expired entry should be evicted on lookup")
}

func TestDisabledCacheCountsBypasses(t *testing.T) {
	c := New[fakeResult](time.Minute, false)

	c.Set("nmap", map[string]any{"target": "example.com"}, fakeResult{Output: "x"})
	_, ok := c.Get("nmap", map[string]any{"target": "example.com"})
	assert.False(t, ok)
	_, _ = c.Get("nmap", map[string]any{"target": "example.com"})

	stats := c.Stats()
	assert.Equal(t, 2, stats.Bypasses)
	assert.Equal(t, 0, stats.Hits)
	assert.Equal(t, 0, stats.Misses)
	assert.Equal(t, 0, stats.Entries)
}

func TestClearKeepsCounters(t *testing.T) {
	c := New[fakeResult](time.Minute, true)
	c.Set("a", nil, fakeResult{})
	c.Set("b", nil, fakeResult{})
	c.Get("a", nil)

	removed := c.Clear()
	assert.Equal(t, 2, removed)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, 1, stats.Hits)
}

func TestSweepExpired(t *testing.T) {
	c := New[fakeResult](time.Minute, true)
	current := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return current }

	c.Set("old", nil, fakeResult{})
	current = current.Add(2 * time.Minute)
	c.Set("fresh", nil, fakeResult{})

	removed := c.SweepExpired()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Stats().Entries)

	_, ok := c.Get("fresh", nil)
	assert.True(t, ok)
}

func TestFormatStats(t *testing.T) {
	c := New[fakeResult](5*time.Minute, true)
	c.Set("nmap", nil, fakeResult{})
	c.Get("nmap", nil)
	c.Get("nikto", nil)

	out := c.FormatStats()
	assert.Contains(t, out, "Entries: 1")
	assert.Contains(t, out, "Hit rate: 50.0%")
	assert.Contains(t, out, "TTL: 300s")

	disabled := New[fakeResult](time.Minute, false)
	assert.Contains(t, disabled.FormatStats(), "disabled")
}
