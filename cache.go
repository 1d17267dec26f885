/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	suggestionTTL   = time.Hour
	cooccurrenceTTL = 5 * time.Minute
)

type cacheEntry struct {
	tags    *TagList
	count   Count
	expires time.Time
}

// cachedService wraps a TagService with an in-memory cache of successful
// lookups. Failures never create, replace or evict an entry.
type cachedService struct {
	inner TagService
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newCachedService(inner TagService) *cachedService {
	return &cachedService{
		inner:   inner,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func suggestionKey(term string) string {
	return "ac:" + strings.ToLower(term)
}

func cooccurrenceKey(tags []string) string {
	keys := make([]string, len(tags))
	for i, t := range tags {
		keys[i] = tagKey(t)
	}
	slices.Sort(keys)

	return "co:" + strings.Join(keys, "|||")
}

func (c *cachedService) lookup(key string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return cacheEntry{}, false
	}

	return e, true
}

func (c *cachedService) store(key string, e cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = e
}

func (c *cachedService) Suggestions(ctx context.Context, term string) (*TagList, error) {
	key := suggestionKey(term)
	if e, ok := c.lookup(key); ok {
		return e.tags, nil
	}

	list, err := c.inner.Suggestions(ctx, term)
	if err != nil {
		return nil, err
	}

	c.store(key, cacheEntry{tags: list, expires: c.now().Add(suggestionTTL)})

	return list, nil
}

func (c *cachedService) Cooccurrence(ctx context.Context, tags []string) (Count, error) {
	key := cooccurrenceKey(tags)
	if e, ok := c.lookup(key); ok {
		return e.count, nil
	}

	count, err := c.inner.Cooccurrence(ctx, tags)
	if err != nil {
		return Count{}, err
	}

	// An unparsed page may be a one-off; ask again next time.
	if count.Parsed {
		c.store(key, cacheEntry{count: count, expires: c.now().Add(cooccurrenceTTL)})
	}

	return count, nil
}

func (c *cachedService) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *cachedService) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}

// sweepLoop drops expired entries until ctx is done.
func (c *cachedService) sweepLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
