// Package fifocache provides a bounded in-memory implementation of
// triage.Cache with first-in-first-out eviction.
package fifocache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/linnemanlabs/pulseroute/internal/triage"
)

// Cache holds clarification results keyed by fingerprint. Entries are only
// read with Peek and written with PeekOrAdd, neither of which touches
// recency, so the underlying LRU list stays in insertion order and the
// oldest entry is evicted first.
type Cache struct {
	entries *lru.Cache[string, *triage.ClarificationResult]
}

// New initializes a cache holding at most size entries. onEvict, if non-nil,
// runs once per entry dropped at capacity.
func New(size int, onEvict func()) (*Cache, error) {
	if size <= 0 {
		size = triage.DefaultCacheSize
	}
	var cb func(string, *triage.ClarificationResult)
	if onEvict != nil {
		cb = func(string, *triage.ClarificationResult) { onEvict() }
	}
	entries, err := lru.NewWithEvict(size, cb)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Get retrieves a result by fingerprint. Returns a copy.
func (c *Cache) Get(_ context.Context, key string) (*triage.ClarificationResult, bool, error) {
	r, ok := c.entries.Peek(key)
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// Add stores a copy of r unless key is already present and returns a copy of
// whichever entry won.
func (c *Cache) Add(_ context.Context, key string, r *triage.ClarificationResult) (*triage.ClarificationResult, error) {
	cp := *r
	prev, found, _ := c.entries.PeekOrAdd(key, &cp)
	if found {
		out := *prev
		return &out, nil
	}
	out := cp
	return &out, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
