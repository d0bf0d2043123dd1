package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/librarystack/inventory-storage-go/config"
	"github.com/librarystack/inventory-storage-go/inventory/consortium"
	"github.com/librarystack/inventory-storage-go/inventory/domainevent"
	"github.com/librarystack/inventory-storage-go/inventory/oteladapters"
	"github.com/librarystack/inventory-storage-go/inventory/postgresengine"
	"github.com/librarystack/inventory-storage-go/inventory/promadapters"
	"github.com/librarystack/inventory-storage-go/inventory/redisbus"
)

const (
	metricsNamespace = "inventory"
	shutdownTimeout  = 5 * time.Second
)

// runtime holds the collaborators every command works with.
type runtime struct {
	cfg              config.Config
	logger           *oteladapters.SlogBridgeLogger
	registry         *prometheus.Registry
	metrics          *promadapters.MetricsCollector
	pool             *pgxpool.Pool
	redis            *redis.Client
	publisher        *domainevent.Publisher
	consortiumClient *consortium.Client
	consortiumData   *consortium.DataCache
	engine           *postgresengine.Engine

	shutdownTracing func(context.Context) error
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   oteladapters.NewSlogBridgeLoggerWithHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})),
		registry: prometheus.NewRegistry(),
	}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = promadapters.NewMetricsCollector(rt.registry, promadapters.WithNamespace(metricsNamespace))

	tracer, shutdownTracing, err := setupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	rt.shutdownTracing = shutdownTracing

	if rt.pool, err = cfg.OpenPGXPool(ctx); err != nil {
		rt.close()
		return nil, err
	}

	rt.redis = redis.NewClient(cfg.RedisOptions())

	producer, err := redisbus.NewProducer(rt.redis, redisbus.WithStreamPrefix(cfg.EventStreamPrefix))
	if err != nil {
		rt.close()
		return nil, err
	}

	rt.publisher, err = domainevent.NewPublisher(producer,
		domainevent.WithContextualLogger(rt.logger),
		domainevent.WithMetrics(rt.metrics),
	)
	if err != nil {
		rt.close()
		return nil, err
	}

	rt.consortiumClient = consortium.NewClient(consortium.WithBaseURL(cfg.ConsortiaURL))
	rt.consortiumData = consortium.NewDataCache(rt.consortiumClient, cfg.ConsortiumDataTTL)

	options := append(cfg.EngineOptions(),
		postgresengine.WithEventPublisher(rt.publisher),
		postgresengine.WithInstanceSharer(consortium.NewSharer(rt.consortiumData, rt.consortiumClient)),
		postgresengine.WithContextualLogger(rt.logger),
		postgresengine.WithMetrics(rt.metrics),
		postgresengine.WithTracing(oteladapters.NewTracingCollector(tracer)),
	)

	engine, err := postgresengine.NewEngineFromPGXPool(rt.pool, options...)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.engine = &engine

	return rt, nil
}

// serveMetrics exposes the registry on the configured address until ctx is done.
func (rt *runtime) serveMetrics(ctx context.Context) {
	if rt.cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promadapters.Handler(rt.registry))

	server := &http.Server{Addr: rt.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.ErrorContext(ctx, "metrics endpoint failed", "error", err.Error())
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()
}

// close drains the publisher before the connections it sends through are closed.
func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if rt.publisher != nil {
		if err := rt.publisher.Close(ctx); err != nil {
			rt.logger.WarnContext(ctx, "domain event publisher did not drain", "error", err.Error())
		}
	}

	if rt.redis != nil {
		_ = rt.redis.Close()
	}

	if rt.pool != nil {
		rt.pool.Close()
	}

	if rt.shutdownTracing != nil {
		if err := rt.shutdownTracing(ctx); err != nil {
			rt.logger.WarnContext(ctx, "tracer provider shutdown failed", "error", err.Error())
		}
	}
}
