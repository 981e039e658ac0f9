package catalog

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CachedRepository wraps a Repository with an in-memory LRU
type CachedRepository struct {
	next   Repository
	byID   *lru.LRU[int64, *Product]
	bySlug *lru.LRU[string, *Product]
	group  singleflight.Group
}

// NewCachedRepository caches up to size products for ttl
func NewCachedRepository(next Repository, size int, ttl time.Duration) *CachedRepository {
	if size < 10 {
		size = 10
	}
	return &CachedRepository{
		next:   next,
		byID:   lru.NewLRU[int64, *Product](size, nil, ttl),
		bySlug: lru.NewLRU[string, *Product](size, nil, ttl),
	}
}

// GetProduct returns a cached product or loads it from the wrapped repository.
// Callers must treat the returned product as read-only.
func (c *CachedRepository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	if p, ok := c.byID.Get(id); ok {
		return p, nil
	}
	v, err, _ := c.group.Do(fmt.Sprintf("id:%d", id), func() (any, error) {
		return c.next.GetProduct(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	p := v.(*Product)
	c.store(p)
	return p, nil
}

// GetProductBySlug returns a cached product or loads it by slug.
func (c *CachedRepository) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	if p, ok := c.bySlug.Get(slug); ok {
		return p, nil
	}
	v, err, _ := c.group.Do("slug:"+slug, func() (any, error) {
		return c.next.GetProductBySlug(ctx, slug)
	})
	if err != nil {
		return nil, err
	}
	p := v.(*Product)
	c.store(p)
	return p, nil
}

// Invalidate drops a product from the cache.
func (c *CachedRepository) Invalidate(p *Product) {
	c.byID.Remove(p.ID)
	c.bySlug.Remove(p.Slug)
}

// Len returns the number of cached products.
func (c *CachedRepository) Len() int {
	return c.byID.Len()
}

func (c *CachedRepository) store(p *Product) {
	c.byID.Add(p.ID, p)
	if p.Slug != "" {
		c.bySlug.Add(p.Slug, p)
	}
}
