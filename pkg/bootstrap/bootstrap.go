// Package bootstrap builds the shared runtime dependencies of the stayhub
// binaries from a loaded config.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/stayhub/stayhub/engine/semantic"
	"github.com/stayhub/stayhub/pkg/config"
	"github.com/stayhub/stayhub/pkg/embed"
	"github.com/stayhub/stayhub/pkg/fn"
	"github.com/stayhub/stayhub/pkg/metrics"
	"github.com/stayhub/stayhub/pkg/resilience"
	"github.com/stayhub/stayhub/pkg/store"
)

// Logger returns a JSON logger on w at the configured level.
func Logger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// Mongo connects, retrying with fn.DefaultRetry while the server comes up,
// and returns the configured database.
func Mongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	opts := fn.DefaultRetry
	opts.Retryable = func(error) bool { return ctx.Err() == nil }
	client, err := fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[*mongo.Client] {
		return fn.FromPair[*mongo.Client](store.Connect(ctx, cfg.URI))
	}).Unwrap()
	if err != nil {
		return nil, nil, err
	}
	return client, client.Database(cfg.Database), nil
}

// Embedder builds the raw embedding provider.
func Embedder(cfg config.EmbedConfig) (embed.BatchEmbedder, error) {
	e, err := embed.New(embed.Config{
		Provider: cfg.Provider,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: embedder: %w", err)
	}
	return e, nil
}

// QueryEmbedder wraps base with a circuit breaker and, when CacheSize is
// positive, an LRU cache in front of it. Breaker transitions are logged and
// exported as stayhub_embed_breaker_state (0 closed, 1 open, 2 half-open).
func QueryEmbedder(base embed.Embedder, cfg config.EmbedConfig, log *slog.Logger, reg *metrics.Registry) (embed.Embedder, error) {
	state := reg.Gauge("stayhub_embed_breaker_state", "Embedding circuit breaker state.")
	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: cfg.BreakerThreshold,
		Timeout:       cfg.BreakerTimeout,
		OnStateChange: func(from, to resilience.State) {
			state.Set(float64(to))
			log.Warn("embedding breaker state change", "from", from.String(), "to", to.String())
		},
	})
	var e embed.Embedder = embed.NewGuarded(base, breaker)
	if cfg.CacheSize > 0 {
		cached, err := embed.NewCached(e, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: embed cache: %w", err)
		}
		e = cached
	}
	return e, nil
}

// Index opens the configured vector index. The returned close function is
// never nil.
func Index(ctx context.Context, cfg config.IndexConfig, db *mongo.Database, log *slog.Logger) (semantic.Index, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendQdrant:
		vs, err := semantic.New(cfg.QdrantAddr, cfg.Collection)
		if err != nil {
			return nil, noop, err
		}
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := vs.EnsureCollection(ctx, cfg.Dims); err != nil {
			_ = vs.Close()
			return nil, noop, err
		}
		log.Info("vector index ready", "backend", cfg.Backend, "addr", cfg.QdrantAddr, "collection", cfg.Collection)
		return vs, vs.Close, nil
	case config.BackendAtlas:
		log.Info("vector index ready", "backend", cfg.Backend, "index", cfg.AtlasIndex)
		return store.NewAtlasIndex(db, cfg.AtlasIndex), noop, nil
	case config.BackendMemory:
		m, err := semantic.NewMemory(cfg.Collection)
		if err != nil {
			return nil, noop, err
		}
		log.Info("vector index ready", "backend", cfg.Backend)
		return m, noop, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown index backend %q", cfg.Backend)
	}
}

// NATS connects to the message bus. An empty URL returns a nil conn and no
// error; callers treat events as disabled.
func NATS(cfg config.NATSConfig, name string, log *slog.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		log.Info("nats disabled")
		return nil, nil
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: nats connect %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// Fatal logs err and exits.
func Fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "err", err)
	os.Exit(1)
}
