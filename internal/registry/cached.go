package registry

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dgellow/cdsso/internal/origin"
)

type cacheEntry struct {
	mapping *Mapping // nil records a miss
}

// CachedStore fronts a Store with an expiring LRU of lookups, including
// misses. Writes through the cache invalidate the affected domain.
type CachedStore struct {
	Store
	cache *expirable.LRU[string, cacheEntry]
}

// NewCachedStore wraps store with a cache of size entries kept for ttl.
func NewCachedStore(store Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 1024
	}
	return &CachedStore{
		Store: store,
		cache: expirable.NewLRU[string, cacheEntry](size, nil, ttl),
	}
}

func (c *CachedStore) Get(ctx context.Context, domain string) (*Mapping, error) {
	domain = origin.NormalizeHost(domain)
	if e, ok := c.cache.Get(domain); ok {
		if e.mapping == nil {
			return nil, ErrDomainNotFound
		}
		m := *e.mapping
		return &m, nil
	}

	m, err := c.Store.Get(ctx, domain)
	switch {
	case errors.Is(err, ErrDomainNotFound):
		c.cache.Add(domain, cacheEntry{})
		return nil, err
	case err != nil:
		return nil, err
	}

	stored := *m
	c.cache.Add(domain, cacheEntry{mapping: &stored})
	return m, nil
}

func (c *CachedStore) Put(ctx context.Context, m Mapping) error {
	defer c.cache.Remove(origin.NormalizeHost(m.Domain))
	return c.Store.Put(ctx, m)
}

func (c *CachedStore) Delete(ctx context.Context, domain string) error {
	defer c.cache.Remove(origin.NormalizeHost(domain))
	return c.Store.Delete(ctx, domain)
}

func (c *CachedStore) SetSSLCapability(ctx context.Context, domain string, secure bool) error {
	defer c.cache.Remove(origin.NormalizeHost(domain))
	return c.Store.SetSSLCapability(ctx, domain, secure)
}
