package content

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FetchFunc produces the content for one key.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// FetchOptions control a single Fetch call.
type FetchOptions struct {
	// ForceRefresh skips the resolved entry. It still joins a fetch that is
	// already in flight for the key.
	ForceRefresh bool
	// SkipLoading keeps the call out of Loading, for background warming.
	SkipLoading bool
}

// Cache holds fetched content for one course session and guarantees at most
// one outstanding fetch per key. Entries never expire.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
	waiters map[string]int // callers blocked on an in-flight fetch
	loading map[string]int // waiters that did not ask for SkipLoading

	group singleflight.Group
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]json.RawMessage),
		waiters: make(map[string]int),
		loading: make(map[string]int),
	}
}

// Get returns the resolved entry for key.
func (c *Cache) Get(key Key) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key.String()]
	return v, ok
}

// Put stores value under key, replacing any previous entry.
func (c *Cache) Put(key Key, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = value
}

// Seed stores value only if key has no entry and reports whether it did.
func (c *Cache) Seed(key Key, value json.RawMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	if _, ok := c.entries[k]; ok {
		return false
	}
	c.entries[k] = value
	return true
}

// Len returns the number of resolved entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sections returns every cached section of one subtopic.
func (c *Cache) Sections(quest, subtopic int) SectionMap {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sections := make(SectionMap)
	for _, s := range SectionTypes {
		if v, ok := c.entries[SectionKey(quest, subtopic, s).String()]; ok {
			sections[s] = v
		}
	}
	return sections
}

// Forget drops every cached section of one subtopic and returns how many
// entries were removed. In-flight fetches are not affected.
func (c *Cache) Forget(quest, subtopic int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, s := range SectionTypes {
		k := SectionKey(quest, subtopic, s).String()
		if _, ok := c.entries[k]; ok {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Pending reports whether any caller is waiting on a fetch for key.
func (c *Cache) Pending(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waiters[key.String()] > 0
}

// Loading reports whether a foreground fetch for key is in flight.
func (c *Cache) Loading(key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading[key.String()] > 0
}

// LoadingKeys returns the keys with a foreground fetch in flight, sorted.
func (c *Cache) LoadingKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.loading))
	for k := range c.loading {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fetch returns the content for key. A resolved entry is returned without
// calling fn unless opts.ForceRefresh is set. Concurrent callers for the same
// key share one call to fn and observe the same value or error. fn runs
// detached from the caller's cancellation and its result is cached even if
// every caller has given up; ctx only bounds how long this caller waits.
func (c *Cache) Fetch(ctx context.Context, key Key, fn FetchFunc, opts FetchOptions) (json.RawMessage, error) {
	if !opts.ForceRefresh {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
	}

	k := key.String()
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k, func() (any, error) {
		// A fetch that finished between Get above and DoChan has
		// already stored its result.
		if !opts.ForceRefresh {
			if v, ok := c.Get(key); ok {
				return v, nil
			}
		}
		v, err := fn(detached)
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})

	c.join(k, !opts.SkipLoading)
	defer c.leave(k, !opts.SkipLoading)

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) join(k string, foreground bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[k]++
	if foreground {
		c.loading[k]++
	}
}

func (c *Cache) leave(k string, foreground bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiters[k]--; c.waiters[k] <= 0 {
		delete(c.waiters, k)
	}
	if foreground {
		if c.loading[k]--; c.loading[k] <= 0 {
			delete(c.loading, k)
		}
	}
}

// waiting returns the number of callers blocked on key.
func (c *Cache) waiting(key Key) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waiters[key.String()]
}
