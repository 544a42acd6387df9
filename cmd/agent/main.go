package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"
	"weallmesh/internal/core/services"
	httphandlers "weallmesh/internal/handlers/http"
	"weallmesh/internal/infrastructure/meshapi"
	"weallmesh/internal/infrastructure/monitoring"
	"weallmesh/internal/infrastructure/repositories/file"
	"weallmesh/internal/infrastructure/repositories/memory"
	redisrepo "weallmesh/internal/infrastructure/repositories/redis"
	"weallmesh/pkg/auth"
	"weallmesh/pkg/config"
	"weallmesh/pkg/logger"
	"weallmesh/pkg/tracing"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}

	zlog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zlog.Sync()
	slog := zlog.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "weallmesh-agent",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		slog.Fatalw("failed to initialize tracing", "error", err)
	}

	store, err := buildSnapshotStore(cfg, slog)
	if err != nil {
		slog.Fatalw("failed to initialize snapshot store", "error", err)
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	rules := domain.Rules{
		PickK:           cfg.Pool.PickK,
		RefreshInterval: cfg.Pool.RefreshInterval,
		CallTimeout:     cfg.Pool.CallTimeout,
		FailCooldown:    cfg.Pool.FailCooldown,
		MaxPool:         cfg.Pool.MaxPool,
		Mix:             cfg.Pool.Mix,
	}

	tokens := auth.NewTokenStore()
	if cfg.Auth.Token != "" {
		tokens.Set(cfg.Auth.Token)
	}

	pool := services.NewPoolService(store, cfg.Pool.Seeds, rules, clock.New(), slog, metrics)
	pool.SetPurpose(cfg.Pool.Purpose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool.Load(ctx)

	factory := meshapi.Factory(meshapi.Options{Tokens: tokens, Logger: slog})
	refresh := services.NewRefreshService(pool, factory, cfg.Pool.Seeds, slog, metrics)
	dispatcher := services.NewDispatcher(pool, refresh, factory, slog, metrics)

	go refresh.Run(ctx, cfg.Pool.RefreshInterval/4)

	var statusSrv *http.Server
	if cfg.Status.Enabled {
		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())

		httphandlers.NewStatusHandler(pool, slog).RegisterRoutes(router)
		httphandlers.NewCallHandler(dispatcher, cfg.Dispatch.Retries, slog).RegisterRoutes(router)
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

		statusSrv = &http.Server{Addr: cfg.Status.Address, Handler: router}
		go func() {
			slog.Infow("status server listening", "address", cfg.Status.Address)
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Errorw("status server failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if statusSrv != nil {
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warnw("status server shutdown failed", "error", err)
		}
	}
	pool.Save(shutdownCtx)
	if err := tp.Shutdown(shutdownCtx); err != nil {
		slog.Warnw("tracing shutdown failed", "error", err)
	}
}

func buildSnapshotStore(cfg *config.Config, slog *zap.SugaredLogger) (ports.SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case "redis":
		client, err := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, slog)
		if err != nil {
			return nil, err
		}
		return redisrepo.NewSnapshotStore(client, slog), nil
	case "memory":
		return memory.NewSnapshotStore(), nil
	default:
		return file.NewSnapshotStore(cfg.Snapshot.Path, slog), nil
	}
}
