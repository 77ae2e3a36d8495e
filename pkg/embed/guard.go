package embed

import (
	"context"
	"fmt"

	"github.com/stayhub/stayhub/pkg/resilience"
)

// Guarded routes calls through a circuit breaker so a failing provider is
// skipped quickly instead of timing out every request.
type Guarded struct {
	next    Embedder
	breaker *resilience.Breaker
}

// NewGuarded wraps next with b.
func NewGuarded(next Embedder, b *resilience.Breaker) *Guarded {
	return &Guarded{next: next, breaker: b}
}

// Embed implements Embedder. An open breaker returns an error wrapping
// resilience.ErrCircuitOpen.
func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := g.next.Embed(ctx, text)
		out = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return out, nil
}
