package embed

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached remembers query vectors by normalized text. Only successful
// results are stored.
type Cached struct {
	next  Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps next with an LRU of the given size.
func NewCached(next Embedder, size int) (*Cached, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embed cache: %w", err)
	}
	return &Cached{next: next, cache: c}, nil
}

func cacheKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Embed implements Embedder. Returned slices are copies.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		return append([]float32(nil), v...), nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, append([]float32(nil), v...))
	return v, nil
}

// Len reports the number of cached entries.
func (c *Cached) Len() int { return c.cache.Len() }
