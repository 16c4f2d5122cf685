package core

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ResourceRef is a sub-resource reference discovered in a rendered body.
// It belongs to the entry that produced it; the push engine looks the
// resource up fresh through the dispatcher instead of holding bytes.
type ResourceRef struct {
	Path string
	// Type is a content-type hint, may be empty.
	Type string
}

// Entry is a generated response plus its metadata. Entries are owned by
// the cache and treated as immutable once stored; invalidation replaces
// an entry wholesale, never mutates it in place.
type Entry struct {
	Identity Identity
	Status   int
	Header   http.Header
	// Body holds the identity (uncompressed) bytes.
	Body []byte
	// Variants maps a content encoding ("gzip", "deflate") to the
	// pre-compressed body for that encoding.
	Variants map[string][]byte
	// Cacheable entries are stored; others are regenerated per request.
	Cacheable bool
	// Generation changes every time the entry is (re)generated.
	Generation xid.ID
	// Resources lists pushable sub-resources in document order.
	Resources []ResourceRef

	// overridden marks entries produced by a handler Override; they
	// short-circuit the remaining pipeline, including Post.
	overridden bool
}

// Response builds a per-request response view of the entry with the
// identity body. The header map is copied so Post handlers can mutate it.
func (e *Entry) Response() *Response {
	h := make(http.Header, len(e.Header))
	for k, vv := range e.Header {
		h[k] = append([]string(nil), vv...)
	}
	return &Response{Status: e.Status, Header: h, Body: e.Body}
}

func (e *Entry) size() int {
	n := len(e.Body)
	for _, v := range e.Variants {
		n += len(v)
	}
	return n
}

// EvictionPolicy decides which stored entries to drop. The default (nil)
// policy keeps everything until an external signal evicts explicitly.
//
// Implementations must be safe for concurrent use; the cache calls them
// outside its shard locks.
type EvictionPolicy interface {
	// Touched is called on every cache hit.
	Touched(key string)
	// Stored is called after a new entry is written and returns the
	// keys that should be evicted to make room.
	Stored(key string, size int) (evict []string)
	// Evicted is called when a key leaves the cache for any reason.
	Evicted(key string)
}

const cacheShards = 32

// Cache is the single-flight response cache. It is sharded by a hash of
// the identity so unrelated requests never contend on one lock.
type Cache struct {
	shards [cacheShards]cacheShard
	policy EvictionPolicy
	log    zerolog.Logger
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	flight  singleflight.Group
}

// NewCache creates a cache with the given eviction policy (nil for
// unbounded) and logger.
func NewCache(policy EvictionPolicy, log zerolog.Logger) *Cache {
	c := &Cache{policy: policy, log: log}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*Entry)
	}
	return c
}

func (c *Cache) shard(key string) *cacheShard {
	return &c.shards[shardIndex(key, cacheShards)]
}

// GetOrGenerate returns the stored entry for id, or runs generate
// exactly once for all concurrent callers of the same identity and
// returns its result. A generation failure is propagated to every
// waiter of that round; the next caller retries fresh.
//
// Cancelling ctx detaches the caller from the round without aborting
// the shared generation: other waiters still receive its result.
func (c *Cache) GetOrGenerate(ctx context.Context, id Identity, generate func() (*Entry, error)) (*Entry, bool, error) {
	key := id.Key()
	s := c.shard(key)

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		if c.policy != nil {
			c.policy.Touched(key)
		}
		return e, true, nil
	}

	ch := s.flight.DoChan(key, func() (interface{}, error) {
		// Re-check under the flight: a concurrent round may have
		// stored the entry between our miss and this call.
		s.mu.RLock()
		e, ok := s.entries[key]
		s.mu.RUnlock()
		if ok {
			return e, nil
		}

		e, err := generate()
		if err != nil {
			return nil, err
		}
		if e.Cacheable {
			c.store(s, key, e)
		}
		return e, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Entry), false, nil
	case <-ctx.Done():
		// The generation keeps running for the other waiters.
		return nil, false, ctx.Err()
	}
}

func (c *Cache) store(s *cacheShard, key string, e *Entry) {
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	c.log.Trace().Str("key", key).Str("generation", e.Generation.String()).Msg("Cache write")

	if c.policy == nil {
		return
	}
	for _, victim := range c.policy.Stored(key, e.size()) {
		if victim == key {
			continue
		}
		c.evictKey(victim)
	}
}

// Get returns the stored entry for id without generating.
func (c *Cache) Get(id Identity) (*Entry, bool) {
	key := id.Key()
	s := c.shard(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	return e, ok
}

// Evict removes the entry for id, if stored. In-flight generations are
// unaffected; they complete and their waiters see that result once.
func (c *Cache) Evict(id Identity) {
	c.evictKey(id.Key())
}

func (c *Cache) evictKey(key string) {
	s := c.shard(key)
	s.mu.Lock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	if ok {
		if c.policy != nil {
			c.policy.Evicted(key)
		}
		c.log.Trace().Str("key", key).Msg("Cache evict")
	}
}

// EvictPath drops every stored entry for the given host and normalized
// path, across methods, queries and vary variants. It returns the number
// of entries dropped.
func (c *Cache) EvictPath(host, path string) int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		var victims []string
		for k, e := range s.entries {
			if e.Identity.Host == host && e.Identity.Path == path {
				victims = append(victims, k)
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
		n += len(victims)
		for _, k := range victims {
			if c.policy != nil {
				c.policy.Evicted(k)
			}
			c.log.Trace().Str("key", k).Msg("Cache evict")
		}
	}
	return n
}

// EvictAll drops every stored entry. This is the hook for an external
// memory-pressure signal.
func (c *Cache) EvictAll() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		keys := make([]string, 0, len(s.entries))
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.entries = make(map[string]*Entry)
		s.mu.Unlock()
		if c.policy != nil {
			for _, k := range keys {
				c.policy.Evicted(k)
			}
		}
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
