package metadata

import (
	"context"
	"time"

	"library-sync/feature/library/models"

	"github.com/patrickmn/go-cache"
)

// Cached memoizes successful lookups of another provider.
type Cached struct {
	next  Provider
	cache *cache.Cache
}

// NewCached wraps next with an in-memory cache holding entries for ttl.
func NewCached(next Provider, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

// Lookup returns the cached snapshot or asks the wrapped provider.
func (c *Cached) Lookup(ctx context.Context, kind models.MediaKind, externalID int64) (*models.Media, error) {
	key := models.MediaKey(kind, externalID)
	if v, ok := c.cache.Get(key); ok {
		m := v.(models.Media)
		return &m, nil
	}
	media, err := c.next.Lookup(ctx, kind, externalID)
	if err != nil {
		return nil, err
	}
	if media == nil {
		return nil, ErrNotFound
	}
	c.cache.SetDefault(key, *media)
	m := *media
	return &m, nil
}

// Len returns the number of cached titles.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
