// Package instcache memoizes deduction results per signature and canonical
// argument list for the lifetime of a session.
package instcache

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"typeforge/internal/deduce"
	"typeforge/internal/trace"
	"typeforge/internal/types"
)

// SignatureID identifies a declared signature within a session.
type SignatureID uint32

// Key addresses one cache entry. Args is the canonical spelling of the
// argument list, so structurally equal argument lists share a key.
type Key struct {
	Signature SignatureID
	Args      string
}

func (k Key) flight() string {
	return strconv.FormatUint(uint64(k.Signature), 10) + "|" + k.Args
}

// Entry is a stored result together with the arguments it was computed for.
type Entry struct {
	Signature SignatureID
	Args      []deduce.Arg
	Result    deduce.Result
}

// Stats counts cache traffic.
type Stats struct {
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	Computations uint64 `json:"computations"`
}

type cached struct {
	args   []deduce.Arg
	result deduce.Result
}

// Cache stores deduction results. Entries are never mutated or evicted;
// they live until the cache is dropped.
type Cache struct {
	types *types.Interner

	mu      sync.RWMutex
	entries map[Key]cached

	flight singleflight.Group

	hits         atomic.Uint64
	misses       atomic.Uint64
	computations atomic.Uint64
}

// New creates a Cache that canonicalizes arguments through in.
func New(in *types.Interner, capHint int) *Cache {
	return &Cache{types: in, entries: make(map[Key]cached, capHint)}
}

// KeyFor canonicalizes args into a cache key.
func (c *Cache) KeyFor(sig SignatureID, args []deduce.Arg) Key {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		q := c.types.Canonical(a.Type)
		b.WriteString(strconv.FormatUint(uint64(q.Type), 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(q.Quals), 16))
		if a.Const {
			b.WriteByte('=')
			b.WriteString(strconv.FormatInt(a.Value, 10))
		}
	}
	return Key{Signature: sig, Args: b.String()}
}

// Get returns the stored result for key.
func (c *Cache) Get(key Key) (deduce.Result, bool) {
	c.mu.RLock()
	rec, ok := c.entries[key]
	c.mu.RUnlock()
	return rec.result, ok
}

// GetOrCompute returns the stored result for (sig, args), running compute on
// a miss. Concurrent callers for the same key share one computation and all
// observe its result. Failures are cached like successes.
func (c *Cache) GetOrCompute(ctx context.Context, sig SignatureID, args []deduce.Arg, compute func() deduce.Result) deduce.Result {
	key := c.KeyFor(sig, args)
	if res, ok := c.Get(key); ok {
		c.hits.Add(1)
		return res
	}
	c.misses.Add(1)

	v, _, _ := c.flight.Do(key.flight(), func() (any, error) {
		// A previous flight may have finished between Get and Do.
		if res, ok := c.Get(key); ok {
			return res, nil
		}
		_, span := trace.StartSpan(ctx, trace.ScopeCall, "cache.compute")
		res := compute()
		span.End(key.Args)
		c.computations.Add(1)

		c.mu.Lock()
		c.entries[key] = cached{args: slices.Clone(args), result: res}
		c.mu.Unlock()
		return res, nil
	})
	return v.(deduce.Result)
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
	}
}

// Entries returns every stored entry ordered by signature and key.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	slices.SortFunc(keys, func(a, b Key) int {
		if a.Signature != b.Signature {
			if a.Signature < b.Signature {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Args, b.Args)
	})

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		rec := c.entries[k]
		out = append(out, Entry{Signature: k.Signature, Args: slices.Clone(rec.args), Result: rec.result})
	}
	return out
}

// Restore inserts previously saved entries. Existing keys keep their
// current result.
func (c *Cache) Restore(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		key := c.KeyFor(e.Signature, e.Args)
		if _, ok := c.entries[key]; ok {
			continue
		}
		c.entries[key] = cached{args: slices.Clone(e.Args), result: e.Result}
	}
}
