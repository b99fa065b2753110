package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon271/strafetimer/internal/config"
	"github.com/halcyon271/strafetimer/internal/dispatch"
	"github.com/halcyon271/strafetimer/internal/host"
	"github.com/halcyon271/strafetimer/internal/obslog"
	"github.com/halcyon271/strafetimer/internal/points"
	"github.com/halcyon271/strafetimer/internal/session"
	"github.com/halcyon271/strafetimer/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.L().Sync()

	gateway := openGateway(cfg)
	defer gateway.Close()

	profiles := config.NewProfileRef(nil)
	if cfg.PointsProfilePath != "" {
		if err := profiles.Reload(cfg.PointsProfilePath); err != nil {
			log.Fatalf("points profile error: %v", err)
		}
	}

	eng := points.NewEngine(gateway, profiles, cfg.Tickrate)
	disp := dispatch.New(dispatch.Options{
		QueueSize: cfg.DispatchQueueSize,
		Retries:   cfg.DispatchRetries,
	})
	disp.Start(context.Background())

	h := host.New(cfg, session.NewRegistry(), eng, disp)

	mapName := os.Getenv("MAP_NAME")
	if mapName == "" {
		mapName = "surf_beginner"
	}
	h.SetMap(mapName, 1)

	obslog.L().Info("surftimerd_started",
		zap.String("driver", cfg.DatabaseDriver),
		zap.Float64("tickrate", cfg.Tickrate),
		zap.String("map", mapName),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The embedding game engine normally drives Tick; standalone, a wall
	// clock ticker stands in so rejoins and retries keep flowing.
	ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.Tickrate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Tick()
		case sig := <-sigCh:
			obslog.L().Info("shutting_down", zap.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := disp.Shutdown(ctx); err != nil {
				obslog.L().Warn("dispatch_shutdown_timeout", zap.Error(err))
			}
			cancel()
			return
		}
	}
}

// openGateway selects the configured backend and degrades to the in-memory
// one when the backend cannot be reached, so the server keeps running with
// session-local records.
func openGateway(cfg *config.AppConfig) store.Gateway {
	gateway, err := store.New(cfg)
	if err != nil {
		log.Fatalf("store init error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := gateway.Open(ctx); err != nil {
		obslog.L().Warn("persistence_unavailable",
			zap.String("driver", cfg.DatabaseDriver),
			zap.Error(err),
		)
		gateway.Close()
		return store.NewMemory()
	}
	if err := gateway.EnsureSchema(ctx); err != nil {
		obslog.L().Warn("schema_migration_failed", zap.Error(err))
		gateway.Close()
		return store.NewMemory()
	}

	if cfg.RedisURL != "" {
		cached, err := store.NewCached(gateway, cfg.RedisURL)
		if err != nil {
			obslog.L().Warn("leaderboard_cache_unavailable", zap.Error(err))
			return gateway
		}
		return cached
	}
	return gateway
}
