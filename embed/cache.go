package embed

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached wraps a Provider with a ristretto cache keyed by source text.
// Repeated directives over the same content (re-indexing a scope, retrying a
// batch) skip the underlying provider entirely.
type Cached struct {
	provider Provider
	cache    *ristretto.Cache
	parallel int
}

// NewCached wraps provider with a cache holding up to maxEntries vectors.
func NewCached(provider Provider, maxEntries int64) (*Cached, error) {
	if maxEntries < 1 {
		maxEntries = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cached{provider: provider, cache: cache, parallel: 8}, nil
}

// Embed returns the cached vector for text, or computes and caches it.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}

// EmbedBatch embeds texts concurrently through the cache.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return BatchEmbed(ctx, c, texts, c.parallel)
}

// Dimensions returns the underlying provider's vector size.
func (c *Cached) Dimensions() int { return c.provider.Dimensions() }

// Wait blocks until pending cache writes are applied. Mostly useful in tests.
func (c *Cached) Wait() { c.cache.Wait() }

// Close releases the cache.
func (c *Cached) Close() { c.cache.Close() }
