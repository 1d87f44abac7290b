package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DedupeCache is a bounded map of action hashes to acceptance timestamps.
// Eviction is opportunistic: inserts past capacity sweep out entries older
// than the window. Safe for concurrent use.
type DedupeCache struct {
	mu       sync.Mutex
	entries  map[string]time.Time
	capacity int
	now      func() time.Time
}

func NewDedupeCache(capacity int, now func() time.Time) *DedupeCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &DedupeCache{
		entries:  make(map[string]time.Time),
		capacity: capacity,
		now:      now,
	}
}

// Seen reports whether key was accepted within window. A fresh or expired
// key is (re)recorded at now and reported as not seen; a live key is
// reported as seen without refreshing its timestamp.
func (c *DedupeCache) Seen(key string, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if ts, ok := c.entries[key]; ok && now.Sub(ts) < window {
		return true
	}

	c.entries[key] = now
	c.evictLocked(now, window)
	return false
}

// Touch records key at now unconditionally.
func (c *DedupeCache) Touch(key string, window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = now
	c.evictLocked(now, window)
}

func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked removes expired entries until the cache is back under
// capacity. Best effort, not LRU: map iteration order decides ties.
func (c *DedupeCache) evictLocked(now time.Time, window time.Duration) {
	if len(c.entries) <= c.capacity {
		return
	}
	for key, ts := range c.entries {
		if now.Sub(ts) >= window {
			delete(c.entries, key)
			if len(c.entries) <= c.capacity {
				return
			}
		}
	}
}

// DedupeKey hashes (workspace, tool, canonicalized input) into a stable
// cache key. An empty workspace scopes the entry globally. The override
// flag is stripped first so a forced call hashes like the original.
func DedupeKey(workspaceID, toolName string, input map[string]any) (string, error) {
	scope := workspaceID
	if scope == "" {
		scope = "global"
	}

	canonical, err := canonicalJSON(withoutOverride(input))
	if err != nil {
		return "", fmt.Errorf("canonicalize tool input: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(toolName))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON yields byte-stable JSON: object keys sorted recursively,
// array order preserved. Round-tripping through any normalizes numbers and
// lets encoding/json emit map keys in sorted order at every level.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

func withoutOverride(input map[string]any) map[string]any {
	if input == nil {
		return map[string]any{}
	}
	if _, ok := input[OverrideKey]; !ok {
		return input
	}
	stripped := make(map[string]any, len(input))
	for k, v := range input {
		if k == OverrideKey {
			continue
		}
		stripped[k] = v
	}
	return stripped
}
