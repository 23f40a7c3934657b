// Package cache implements the Entity Cache (C2): a read-through,
// TTL-bounded cache over the Entity Graph (C1), invalidated synchronously
// by the executor after every mutation (spec.md §4.2).
package cache

import (
	"sync"
	"time"

	"github.com/access-control/acs-core/internal/domain/entity"
)

// Source is the narrow read port onto the graph (C1) the cache loads
// through on a miss.
type Source interface {
	GetAny(id int64) (*entity.Principal, error)
}

type entry struct {
	principal *entity.Principal
	expiresAt time.Time
}

// Cache is safe for concurrent access. Writes (Set/Invalidate) may race;
// last-write-wins is acceptable because Invalidate is idempotent and Set
// always reflects the executor's most recent observation (spec.md §5).
type Cache struct {
	mu      sync.RWMutex
	entries map[int64]entry
	ttl     time.Duration
	source  Source

	// mirror is an optional secondary tier (Redis) written through
	// best-effort; its failures are discarded, not logged, and never
	// propagate (§7).
	mirror Mirror
}

// Mirror is the optional distributed cache tier (grounded on
// internal/adapters/redis). Set/Invalidate failures must be swallowed by
// the caller — Mirror itself just reports them.
type Mirror interface {
	Set(principal *entity.Principal, ttl time.Duration) error
	Invalidate(id int64) error
}

// New constructs a Cache with the given TTL and graph source. mirror may be
// nil when no distributed tier is configured.
func New(source Source, ttl time.Duration, mirror Mirror) *Cache {
	return &Cache{
		entries: make(map[int64]entry),
		ttl:     ttl,
		source:  source,
		mirror:  mirror,
	}
}

// Get returns the cached principal, loading it from the graph on a miss or
// expiry.
func (c *Cache) Get(id int64) (*entity.Principal, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()

	if ok && time.Now().Before(e.expiresAt) {
		return e.principal, nil
	}

	p, err := c.source.GetAny(id)
	if err != nil {
		return nil, err
	}

	c.Set(p)

	return p, nil
}

// GetAny satisfies evaluator.Source so the evaluator can read through the
// cache rather than the raw graph.
func (c *Cache) GetAny(id int64) (*entity.Principal, error) {
	return c.Get(id)
}

// Set populates the cache with a snapshot clone of p (never the live
// graph reference — see entity.Principal.Clone) and best-effort mirrors it.
func (c *Cache) Set(p *entity.Principal) {
	clone := p.Clone()

	c.mu.Lock()
	c.entries[p.ID] = entry{principal: clone, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	if c.mirror != nil {
		_ = c.mirror.Set(clone, c.ttl) // best-effort; failures never propagate
	}
}

// Invalidate removes id from the cache. Called by the executor synchronously
// after every mutation that touches id (spec.md §4.2, §9 "invalidate the
// touched principal and the set whose membership changed").
func (c *Cache) Invalidate(id int64) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()

	if c.mirror != nil {
		_ = c.mirror.Invalidate(id)
	}
}

// InvalidateAll invalidates every id in ids in one call — used by the
// executor after a mutation that touches a principal and its structural
// neighbors (e.g. both sides of a Link/Unlink).
func (c *Cache) InvalidateAll(ids ...int64) {
	for _, id := range ids {
		c.Invalidate(id)
	}
}

// Warmup primes the cache for every principal the graph currently holds,
// called once after LoadFromStore (spec.md §4.2).
func (c *Cache) Warmup(all []*entity.Principal) {
	for _, p := range all {
		c.Set(p)
	}
}
