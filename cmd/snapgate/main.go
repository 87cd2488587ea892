package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/snapgate/snapgate/internal/api"
	"github.com/snapgate/snapgate/internal/cache"
	"github.com/snapgate/snapgate/internal/compare"
	"github.com/snapgate/snapgate/internal/config"
	"github.com/snapgate/snapgate/internal/governor"
	"github.com/snapgate/snapgate/internal/jobs"
	"github.com/snapgate/snapgate/internal/renderer"
	"github.com/snapgate/snapgate/internal/storage"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to create storage: %v", err)
	}

	counters, err := buildCounterStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to create rate limit store: %v", err)
	}
	gov := governor.New(governor.Limits{
		PerMinute: cfg.RateLimit.PerMinute,
		PerHour:   cfg.RateLimit.PerHour,
	}, counters)

	resultCache := cache.New(blobs)
	resultCache.StartSweeper(ctx, cfg.Cache.SweepInterval)

	comparer := compare.NewEngine(blobs)

	render, stopRenderer, err := buildRenderer(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to create renderer: %v", err)
	}
	defer stopRenderer()

	jobStore := jobs.NewMemoryStore()
	jobStore.StartJanitor(ctx, cfg.Jobs.SweepInterval, cfg.Jobs.RetainTerminal)

	deliverer := jobs.NewDeliverer(jobs.DelivererConfig{
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		AttemptTimeout: cfg.Webhook.AttemptTimeout,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
		Workers:        cfg.Webhook.Workers,
		RatePerSecond:  cfg.Webhook.RatePerSecond,
	}, jobStore)

	orch := jobs.NewOrchestrator(jobs.OrchestratorConfig{
		Workers:        cfg.Jobs.Workers,
		QueueSize:      cfg.Jobs.QueueSize,
		CaptureTimeout: cfg.Jobs.CaptureTimeout,
	}, jobStore, render, blobs, deliverer)
	orch.Start(ctx)

	server := api.NewServer(api.ServerConfig{
		Governor:       gov,
		Cache:          resultCache,
		Comparer:       comparer,
		Orchestrator:   orch,
		Renderer:       render,
		APIKeyDigests:  cfg.APIKeys,
		CacheTTL:       cfg.Cache.TTL,
		CaptureTimeout: cfg.Jobs.CaptureTimeout,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("shutting down...")
		cancel()
	}()

	log.Printf("starting snapgate server on %s", cfg.ListenAddr)
	if err := server.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func buildBlobStore(ctx context.Context, cfg config.Config) (cache.BlobStore, error) {
	if cfg.Storage.Backend == "memory" {
		return cache.NewMemoryBlobStore(), nil
	}

	store, err := storage.NewMinIOStorage(
		cfg.Storage.Endpoint,
		cfg.Storage.AccessKey,
		cfg.Storage.SecretKey,
		cfg.Storage.Bucket,
		cfg.Storage.UseSSL,
	)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func buildCounterStore(ctx context.Context, cfg config.Config) (governor.CounterStore, error) {
	if cfg.RateLimit.Backend == "memory" {
		store := governor.NewMemoryStore()
		store.StartJanitor(ctx, governor.HourWindow)
		return store, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return governor.NewRedisStore(rdb, "snapgate:ratelimit"), nil
}

func buildRenderer(ctx context.Context, cfg config.Config) (renderer.Renderer, func(), error) {
	if cfg.Renderer.Mode == "http" {
		return renderer.NewClient(cfg.Renderer.EngineURL), func() {}, nil
	}

	pool, err := renderer.NewPool(cfg.Renderer.Image, cfg.Renderer.Network, cfg.Renderer.PoolSize)
	if err != nil {
		return nil, nil, err
	}
	pool.Start(ctx)
	return pool, func() { pool.Stop(context.Background()) }, nil
}
