package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepository struct {
	products map[int64]*Product
	calls    atomic.Int32
	delay    time.Duration
}

func (r *countingRepository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	r.calls.Add(1)
	time.Sleep(r.delay)
	if p, ok := r.products[id]; ok {
		return p, nil
	}
	return nil, ErrProductNotFound
}

func (r *countingRepository) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	r.calls.Add(1)
	for _, p := range r.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, ErrProductNotFound
}

func TestCachedRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("hits after the first load", func(t *testing.T) {
		next := &countingRepository{products: map[int64]*Product{1: annualPlan()}}
		repo := NewCachedRepository(next, 100, time.Minute)

		for i := 0; i < 3; i++ {
			p, err := repo.GetProduct(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "pro", p.Slug)
		}
		assert.Equal(t, int32(1), next.calls.Load())

		// loading by ID also primes the slug index
		_, err := repo.GetProductBySlug(ctx, "pro")
		require.NoError(t, err)
		assert.Equal(t, int32(1), next.calls.Load())
		assert.Equal(t, 1, repo.Len())
	})

	t.Run("misses are not cached", func(t *testing.T) {
		next := &countingRepository{products: map[int64]*Product{}}
		repo := NewCachedRepository(next, 100, time.Minute)

		_, err := repo.GetProduct(ctx, 7)
		assert.True(t, errors.Is(err, ErrProductNotFound))
		_, err = repo.GetProduct(ctx, 7)
		assert.True(t, errors.Is(err, ErrProductNotFound))
		assert.Equal(t, int32(2), next.calls.Load())
	})

	t.Run("concurrent misses collapse", func(t *testing.T) {
		next := &countingRepository{products: map[int64]*Product{1: annualPlan()}, delay: 50 * time.Millisecond}
		repo := NewCachedRepository(next, 100, time.Minute)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.GetProduct(ctx, 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Less(t, next.calls.Load(), int32(10))
	})

	t.Run("invalidate forces a reload", func(t *testing.T) {
		next := &countingRepository{products: map[int64]*Product{1: annualPlan()}}
		repo := NewCachedRepository(next, 100, time.Minute)

		p, err := repo.GetProduct(ctx, 1)
		require.NoError(t, err)
		repo.Invalidate(p)
		_, err = repo.GetProduct(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(2), next.calls.Load())
	})
}
