package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/vnmchuo/ollama-gateway/config"
	"github.com/vnmchuo/ollama-gateway/internal/cache"
	"github.com/vnmchuo/ollama-gateway/internal/chat"
	"github.com/vnmchuo/ollama-gateway/internal/health"
	"github.com/vnmchuo/ollama-gateway/internal/metrics"
	"github.com/vnmchuo/ollama-gateway/internal/provider"
	"github.com/vnmchuo/ollama-gateway/internal/provider/ollama"
	"github.com/vnmchuo/ollama-gateway/internal/proxy"
	"github.com/vnmchuo/ollama-gateway/internal/telemetry"
	"github.com/vnmchuo/ollama-gateway/internal/usage"
	"github.com/vnmchuo/ollama-gateway/internal/usagelog"
)

const serviceName = "ollama-gateway"

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init logger and telemetry
	logger, err := telemetry.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	shutdownTracer, err := telemetry.InitTracer(serviceName, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer()

	ctx := context.Background()

	// 3. Connect Redis. The gateway still serves chat when the cache is down.
	store, err := cache.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal("invalid redis url", zap.Error(err))
	}
	defer store.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("redis not reachable at startup", zap.Error(err))
	} else {
		logger.Info("Redis connected")
	}
	cancelPing()

	probes := []health.Probe{
		{Name: "cache", Timeout: 2 * time.Second, Check: store.Ping},
	}

	// 4. Connect PostgreSQL for the completion journal, if configured
	var journal usagelog.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pool.Close()

		pgStore := usagelog.NewPostgresStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Warn("usage journal disabled", zap.Error(err))
		} else {
			journal = pgStore
			probes = append(probes, health.Probe{Name: "database", Timeout: 2 * time.Second, Check: pool.Ping})
			logger.Info("PostgreSQL connected")
		}
	}

	// 5. Init inference backend
	backend := ollama.New(cfg.OllamaURL)
	inference := provider.NewBreaker(backend)
	probes = append(probes, health.Probe{Name: "inference", Timeout: provider.ProbeTimeout, Check: backend.Ping})

	// 6. Init metrics and usage accounting
	m := metrics.New()
	accountant := usage.NewAccountant(store)
	queue := usage.NewQueue(cfg.UsageWorkers, cfg.UsageQueueSize, logger,
		usage.WithResultHook(func(task usage.Task, err error) {
			m.ObserveUsageUpdate(err)
		}),
	)

	// 7. Init orchestrator and handler
	var opts []chat.Option
	opts = append(opts, chat.WithMetrics(m))
	if journal != nil {
		opts = append(opts, chat.WithJournal(journal))
	}
	tracer := otel.GetTracerProvider().Tracer(serviceName)
	orchestrator := chat.NewOrchestrator(inference, accountant, queue, tracer, logger, opts...)

	checker := health.NewAggregator(logger, probes...)
	info := proxy.ServiceInfo{
		Environment: cfg.Environment,
		OllamaURL:   cfg.OllamaURL,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
	}
	handler := proxy.NewHandler(orchestrator, accountant, checker, store, info, logger)

	// 8. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      proxy.NewRouter(handler, m, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Ollama Gateway starting",
			zap.String("port", cfg.Port),
			zap.String("ollama_url", cfg.OllamaURL),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	if err := queue.Close(shutdownCtx); err != nil {
		logger.Error("usage queue did not drain", zap.Error(err))
	}
	logger.Info("Server stopped")
}
