// Command solver runs the round-based arbitrage engine against whatever
// chains are configured: one reactor per chain, each draining its own
// indexer sync loop and racing its own router backends, all sharing one
// Redis route cache and one HTTP surface for health and metrics.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/rainsolver/solver/internal/config"
	"github.com/rainsolver/solver/internal/router"
	"github.com/rainsolver/solver/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	obs, err := observability.NewSimpleObservabilityProvider(&observability.SimpleObservabilityConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       cfg.Observability.LogLevel,
		LogFormat:      cfg.Observability.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "observability: %v\n", err)
		os.Exit(1)
	}
	logger := obs.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = obs.Start(ctx)

	tracing, err := observability.NewTracingProvider(cfg.Observability)
	if err != nil {
		logger.Warn(ctx, "tracing disabled", map[string]interface{}{"error": err.Error()})
		tracing = nil
	}

	redisClient, err := newRedisClient(cfg.Redis)
	if err != nil {
		logger.Error(ctx, "redis: failed to connect", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	metricsRegistry := prometheus.NewRegistry()
	metricsProvider, err := observability.NewMetricsProvider(observability.MetricsConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: "0.1.0",
		Namespace:      "solver",
		Enabled:        true,
		Registry:       metricsRegistry,
	})
	if err != nil {
		logger.Error(ctx, "metrics: failed to initialize", err)
		os.Exit(1)
	}

	healthChecker := observability.NewHealthChecker(logger)
	healthChecker.RegisterCheck("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}))
	if cfg.Solver.IndexerBaseURL != "" {
		healthChecker.RegisterCheck("indexer", observability.HTTPServiceHealthCheck(cfg.Solver.IndexerBaseURL, 5*time.Second))
	}
	if cfg.Solver.AggregatorBaseURL != "" {
		healthChecker.RegisterCheck("aggregator", observability.HTTPServiceHealthCheck(cfg.Solver.AggregatorBaseURL, 5*time.Second))
	}

	perf := observability.NewPerformanceMonitor(logger)
	defer perf.Stop()
	healthChecker.RegisterCheck("route-cache", observability.RouteCacheHealthCheck(perf, 0.5))

	gatherers := prometheus.Gatherers{metricsRegistry}
	var wg sync.WaitGroup

	var tracer oteltrace.Tracer
	if tracing != nil {
		tracer = tracing.Tracer()
	}

	var cacheSampleFacade *router.Facade

	for chainID, chainCfg := range cfg.Solver.Chains {
		stack, err := buildChainReactor(chainID, chainCfg, cfg.Solver, redisClient, logger, perf, tracer)
		if err != nil {
			logger.Error(ctx, "failed to build chain reactor", err, map[string]interface{}{"chain": chainID})
			continue
		}
		if cacheSampleFacade == nil {
			cacheSampleFacade = stack.RouterFacade
		}

		gatherers = append(gatherers, stack.Registry)
		healthChecker.RegisterCheck("chain:"+chainID, func(ctx context.Context) observability.HealthCheckResult {
			if err := stack.RPCPing(ctx); err != nil {
				return observability.HealthCheckResult{Status: observability.HealthStatusUnhealthy, Message: err.Error()}
			}
			return observability.HealthCheckResult{Status: observability.HealthStatusHealthy}
		})
		healthChecker.RegisterCheck("reactor:"+chainID, observability.ReactorRoundHealthCheck(perf, chainID, 2*time.Minute, 3))

		wg.Add(1)
		go func(r *reactorRunner) {
			defer wg.Done()
			r.Run(ctx)
		}(&reactorRunner{stack: stack, logger: logger})
	}

	if len(gatherers) == 1 {
		logger.Error(ctx, "no chains configured successfully", fmt.Errorf("all chains failed to initialize"))
		os.Exit(1)
	}

	router := mux.NewRouter()
	healthServer := observability.NewHealthServer(healthChecker, observability.ServiceInfo{
		Name:        cfg.Observability.ServiceName,
		Version:     "0.1.0",
		Environment: getEnv("ENVIRONMENT", "development"),
		StartTime:   time.Now(),
	}, logger)
	healthServer.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	var handler http.Handler = router
	handler = cors.Default().Handler(handler)
	handler = obs.GetHTTPMiddleware()(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "http server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http server failed", err)
		}
	}()

	go sampleResourceUsage(ctx, perf, metricsProvider, 30*time.Second)
	if cacheSampleFacade != nil {
		go sampleCacheUsage(ctx, perf, cacheSampleFacade, 30*time.Second)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "shutdown signal received", nil)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http server shutdown failed", err)
	}
	if tracing != nil {
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "tracing shutdown failed", err)
		}
	}
	if err := metricsProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "metrics shutdown failed", err)
	}
	_ = obs.Stop(shutdownCtx)

	wg.Wait()
	logger.Info(ctx, "shutdown complete", nil)
}

// reactorRunner exists only so the per-chain goroutine has a name in stack
// traces and logs; it does nothing Reactor.Start doesn't already do.
type reactorRunner struct {
	stack  *chainStack
	logger *observability.Logger
}

func (r *reactorRunner) Run(ctx context.Context) {
	r.logger.Info(ctx, "reactor started", map[string]interface{}{"chain": r.stack.ChainID})
	r.stack.Reactor.Start(ctx)
	r.logger.Info(ctx, "reactor stopped", map[string]interface{}{"chain": r.stack.ChainID})
}

// sampleResourceUsage periodically feeds PerformanceMonitor's samples into
// MetricsProvider's gauges, the bridge between the two otherwise-separate
// observability pieces the teacher kept apart (one polls, one exports).
func sampleResourceUsage(ctx context.Context, perf *observability.PerformanceMonitor, metrics *observability.MetricsProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := perf.GetMetrics()
			metrics.UpdateSystemResourceUsage(ctx, "cpu", snap.CPUUsage)
			metrics.UpdateSystemResourceUsage(ctx, "memory_bytes", float64(snap.MemoryUsage))
			metrics.UpdateErrorRate(ctx, snap.PairErrorRate)
		}
	}
}

// sampleCacheUsage periodically feeds one chain's router.Facade cache hit
// rate into PerformanceMonitor.RecordCacheMetrics -- every chain shares the
// same Redis keyspace, so one representative facade is enough to surface
// the fleet-wide route cache's health.
func sampleCacheUsage(ctx context.Context, perf *observability.PerformanceMonitor, facade *router.Facade, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hitRate, size := facade.CacheStats(ctx)
			perf.RecordCacheMetrics(hitRate, size, 0)
		}
	}
}

func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.MinRetryBackoff
	opts.MaxRetryBackoff = cfg.MaxRetryBackoff

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
