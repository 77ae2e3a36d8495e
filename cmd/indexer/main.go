// Command indexer keeps the hotel vector index in step with the catalogue.
// It consumes hotel change events from NATS and runs a full reindex on a
// fixed interval to repair anything an event missed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/stayhub/stayhub/engine/index"
	"github.com/stayhub/stayhub/pkg/bootstrap"
	"github.com/stayhub/stayhub/pkg/config"
	"github.com/stayhub/stayhub/pkg/metrics"
	"github.com/stayhub/stayhub/pkg/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config (default $"+config.PathEnv+")")
		once       = flag.Bool("once", false, "run a single reindex and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := bootstrap.Logger(os.Stdout, cfg.Log)
	slog.SetDefault(log)

	if err := run(cfg, *once, log); err != nil {
		bootstrap.Fatal(log, "indexer exited with error", err)
	}
}

func run(cfg *config.Config, once bool, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	client, db, err := bootstrap.Mongo(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}()

	vectors, closeIndex, err := bootstrap.Index(ctx, cfg.Index, db, log)
	if err != nil {
		return err
	}
	defer closeIndex()

	embedder, err := bootstrap.Embedder(cfg.Embed)
	if err != nil {
		return err
	}

	var limiter *rate.Limiter
	if cfg.Index.EmbedRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Index.EmbedRate), 1)
	}
	ix := index.New(index.Deps{
		Embedder:  embedder,
		Vectors:   vectors,
		Hotels:    store.NewHotels(db),
		Limiter:   limiter,
		BatchSize: cfg.Index.BatchSize,
		Logger:    log,
		Metrics:   reg,
	})

	if once {
		n, err := ix.Reindex(ctx)
		log.Info("reindex finished", "indexed", n)
		return err
	}

	reg.CollectRuntime(ctx, "stayhub_indexer", 15*time.Second)
	reg.ServeAsync(ctx, cfg.Metrics.Addr, log)

	// --- Event consumer ---
	nc, err := bootstrap.NATS(cfg.NATS, "stayhub-indexer", log)
	if err != nil {
		return err
	}
	if nc != nil {
		defer nc.Drain()
		consumer := ix.Consumer(nc)
		for _, subject := range []string{index.SubjectCreated, index.SubjectDeleted} {
			sub, err := consumer.Subscribe(nc, subject)
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
			defer unsubscribe(sub, log)
		}
		log.Info("consuming hotel events", "queue", index.QueueGroup, "dlq", index.DLQSubject)
	}

	// --- Periodic reindex ---
	reindex := func() {
		n, err := ix.Reindex(ctx)
		if err != nil {
			log.Error("reindex failed", "indexed", n, "err", err)
			return
		}
		log.Info("reindex finished", "indexed", n)
	}
	reindex()

	if cfg.Index.ReindexInterval <= 0 {
		<-ctx.Done()
		log.Info("indexer stopped")
		return nil
	}
	ticker := time.NewTicker(cfg.Index.ReindexInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("indexer stopped")
			return nil
		case <-ticker.C:
			reindex()
		}
	}
}

func unsubscribe(sub *nats.Subscription, log *slog.Logger) {
	if err := sub.Unsubscribe(); err != nil {
		log.Warn("unsubscribe failed", "subject", sub.Subject, "err", err)
	}
}
