// Command slimlo-server exposes a Pool over HTTP: it loads configuration,
// wires the cache/audit/metrics/events/webhooks/identity components, and
// serves conversions until an interrupt or SIGTERM triggers a graceful
// shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ocx/slimlo/internal/api"
	"github.com/ocx/slimlo/internal/audit"
	"github.com/ocx/slimlo/internal/cache"
	"github.com/ocx/slimlo/internal/config"
	"github.com/ocx/slimlo/internal/events"
	"github.com/ocx/slimlo/internal/identity"
	"github.com/ocx/slimlo/internal/metrics"
	"github.com/ocx/slimlo/internal/webhooks"
	"github.com/ocx/slimlo/pkg/slimlo"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "slimlo-server")
	slog.SetDefault(log)

	cfg := config.Get()

	pool, err := slimlo.NewPool(slimlo.PoolConfig{
		WorkerPath:          cfg.Pool.WorkerPath,
		ResourcePath:        cfg.Pool.ResourcePath,
		FontDirs:            cfg.Pool.FontDirs,
		MaxWorkers:          cfg.Pool.MaxWorkers,
		RecycleAfter:        cfg.Pool.RecycleAfter,
		ConversionTimeout:   cfg.Pool.ConversionTimeout(),
		DisposeGrace:        cfg.Pool.GracefulShutdown(),
		IdleRecycle:         cfg.Pool.IdleRecycle(),
		MaintenanceInterval: cfg.Pool.MaintenanceInterval(),
		Logger:              log,
	})
	if err != nil {
		log.Error("failed to build conversion pool", "error", err)
		os.Exit(1)
	}

	warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pool.WarmUp(warmCtx); err != nil {
		log.Warn("pool warm-up had failures, continuing with whatever started", "error", err)
	}
	warmCancel()

	apiCfg := api.Config{
		Addr:           cfg.Server.Addr,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Metrics:        metrics.NewMetrics(),
	}

	if cfg.Cache.RedisAddr != "" {
		store, err := cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			log.Warn("redis cache unavailable, falling back to in-memory cache", "addr", cfg.Cache.RedisAddr, "error", err)
			apiCfg.Cache = cache.NewMemoryStore()
		} else {
			defer store.Close()
			apiCfg.Cache = store
		}
	} else {
		apiCfg.Cache = cache.NewMemoryStore()
	}

	if cfg.Audit.Enabled {
		logger, err := audit.Open(context.Background(), cfg.Audit.PostgresDSN)
		if err != nil {
			log.Warn("audit log unavailable, conversions will not be recorded", "error", err)
		} else {
			defer logger.Close()
			apiCfg.Audit = logger
		}
	}

	if cfg.PubSub.Enabled && cfg.PubSub.ProjectID != "" {
		mirror, err := events.NewPubSubMirror(cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			log.Warn("pubsub event mirror unavailable, using in-memory bus only", "error", err)
			apiCfg.Events = events.NewBus()
		} else {
			defer mirror.Close()
			apiCfg.Events = mirror
		}
	} else {
		apiCfg.Events = events.NewBus()
	}

	webhookRegistry := webhooks.NewRegistry()
	apiCfg.WebhookRegistry = webhookRegistry
	if cfg.Tasks.Enabled && cfg.Tasks.ProjectID != "" {
		dispatcher, err := webhooks.NewCloudDispatcher(webhookRegistry, cfg.Tasks.ProjectID, cfg.Tasks.LocationID, cfg.Tasks.QueueID, 4)
		if err != nil {
			log.Warn("cloud tasks dispatcher unavailable, falling back to in-memory delivery", "error", err)
			apiCfg.Webhooks = webhooks.NewDispatcher(webhookRegistry, 4)
		} else {
			apiCfg.Webhooks = dispatcher
		}
	} else {
		apiCfg.Webhooks = webhooks.NewDispatcher(webhookRegistry, 4)
	}
	defer apiCfg.Webhooks.Shutdown()

	if cfg.Identity.Enabled {
		idCtx, idCancel := context.WithTimeout(context.Background(), 5*time.Second)
		source, err := identity.NewSource(idCtx, cfg.Identity.SocketPath, cfg.Identity.TrustDomain)
		idCancel()
		if err != nil {
			log.Warn("spiffe identity unavailable, serving without mTLS", "error", err)
		} else {
			defer source.Close()
			apiCfg.TLSConfig = source.ServerTLSConfig()
		}
	}

	server := api.NewServer(pool, apiCfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pool.GracefulShutdown())
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		pool.Dispose(shutdownCtx)
	}()

	log.Info("slimlo-server starting", "addr", cfg.Server.Addr, "max_workers", cfg.Pool.MaxWorkers)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
