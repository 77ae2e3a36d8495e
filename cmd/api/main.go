// Package main implements the stayhub API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/stayhub/stayhub/engine/assistant"
	"github.com/stayhub/stayhub/engine/booking"
	"github.com/stayhub/stayhub/engine/index"
	"github.com/stayhub/stayhub/engine/payment"
	"github.com/stayhub/stayhub/engine/search"
	"github.com/stayhub/stayhub/pkg/auth"
	"github.com/stayhub/stayhub/pkg/bootstrap"
	"github.com/stayhub/stayhub/pkg/config"
	"github.com/stayhub/stayhub/pkg/metrics"
	"github.com/stayhub/stayhub/pkg/resilience"
	"github.com/stayhub/stayhub/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default $"+config.PathEnv+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := bootstrap.Logger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		bootstrap.Fatal(logger, "server exited with error", err)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	reg.CollectRuntime(ctx, "stayhub_api", 15*time.Second)

	// --- Connect to MongoDB ---
	client, db, err := bootstrap.Mongo(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}()
	if err := store.EnsureIndexes(ctx, db); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	hotels := store.NewHotels(db)
	bookings := store.NewBookings(db)

	// --- Vector index and embeddings ---
	vectors, closeIndex, err := bootstrap.Index(ctx, cfg.Index, db, logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	rawEmbed, err := bootstrap.Embedder(cfg.Embed)
	if err != nil {
		return err
	}
	queryEmbed, err := bootstrap.QueryEmbedder(rawEmbed, cfg.Embed, logger, reg)
	if err != nil {
		return err
	}

	searchOpts := search.DefaultOptions()
	searchOpts.EmbedTimeout = cfg.Search.EmbedTimeout
	searchOpts.SearchTimeout = cfg.Search.SearchTimeout
	searchOpts.FallbackToBrowse = cfg.Search.FallbackToBrowse
	searchSvc := search.New(queryEmbed, vectors, hotels, searchOpts, logger, reg)

	var limiter *rate.Limiter
	if cfg.Index.EmbedRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Index.EmbedRate), 1)
	}
	indexer := index.New(index.Deps{
		Embedder:  rawEmbed,
		Vectors:   vectors,
		Hotels:    hotels,
		Limiter:   limiter,
		BatchSize: cfg.Index.BatchSize,
		Logger:    logger,
		Metrics:   reg,
	})
	if cfg.Index.Backend == config.BackendMemory {
		// The in-process index starts empty.
		go func() {
			n, err := indexer.Reindex(ctx)
			logger.Info("initial reindex finished", "indexed", n, "err", err)
		}()
	}

	// --- Services ---
	srv := &server{
		hotels:   hotels,
		search:   searchSvc,
		bookings: booking.New(bookings, hotels, logger, reg),
		indexer:  indexer,
		ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
		metrics:  reg.Handler(),
		log:      logger,
	}
	if cfg.Stripe.SecretKey != "" {
		srv.payments = payment.New(payment.NewStripeSessions(cfg.Stripe.SecretKey), payment.Options{
			PublicURL: cfg.Server.PublicURL,
			Logger:    logger,
			Metrics:   reg,
		})
	} else {
		logger.Warn("stripe.secret_key not set, payments disabled")
	}
	if cfg.Assistant.APIKey != "" {
		model, err := assistant.NewOpenAIModel(cfg.Assistant.APIKey, cfg.Assistant.Model, cfg.Assistant.BaseURL)
		if err != nil {
			return fmt.Errorf("assistant model: %w", err)
		}
		opts := assistant.DefaultOptions()
		opts.Timeout = cfg.Assistant.Timeout
		opts.Logger = logger
		opts.Metrics = reg
		srv.chat = assistant.New(model, opts)
	} else {
		logger.Warn("assistant.api_key not set, assistant disabled")
	}

	nc, err := bootstrap.NATS(cfg.NATS, "stayhub-api", logger)
	if err != nil {
		// Events are an optimisation; the indexer's periodic pass catches up.
		logger.Warn("hotel events disabled", "err", err)
	}
	if nc != nil {
		defer nc.Drain()
		srv.events = nc
	}

	// --- Auth ---
	verifier, err := auth.NewVerifier(auth.Options{
		Secret:       []byte(cfg.Auth.JWTSecret),
		PublicKeyPEM: []byte(cfg.Auth.PublicKeyPEM),
		Issuer:       cfg.Auth.Issuer,
	})
	if err != nil {
		return fmt.Errorf("auth verifier: %w", err)
	}

	// --- Build HTTP server ---
	var limits *resilience.KeyedLimiter
	if cfg.Server.RateLimit > 0 {
		limits = resilience.NewKeyedLimiter(resilience.LimiterOpts{
			Rate:  cfg.Server.RateLimit,
			Burst: cfg.Server.RateBurst,
		})
		go pruneLoop(ctx, limits, time.Minute)
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.handler(verifier, limits, cfg.Server.CORSOrigin),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", cfg.Server.Addr, "index", cfg.Index.Backend)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

// pruneLoop drops idle rate limit buckets until ctx is done.
func pruneLoop(ctx context.Context, l *resilience.KeyedLimiter, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Prune()
		}
	}
}
