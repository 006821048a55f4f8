// Package main provides the gateway binary that terminates client
// WebSocket connections and relays traffic to zone servers over the bus.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
	"github.com/riftwalk/server/internal/config"
	"github.com/riftwalk/server/internal/gateway"
	"github.com/riftwalk/server/internal/metrics"
	"github.com/riftwalk/server/internal/observability"
	"github.com/riftwalk/server/internal/registry"
	"github.com/riftwalk/server/internal/server"
	"github.com/riftwalk/server/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/gateway.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.Server.ID == "" {
		cfg.Server.ID = "gateway-" + uuid.NewString()
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting gateway",
		zap.String("server_id", cfg.Server.ID),
		zap.String("addr", cfg.Gateway.Addr()),
	)

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	store := postgres.NewStore(pool)

	msgBus, err := bus.NewRedisBus(ctx, cfg.Bus, logger)
	if err != nil {
		logger.Fatal("connecting to redis", zap.Error(err))
	}
	defer msgBus.Close()

	reg := registry.New(cfg.Server.ID, msgBus, logger)
	m := metrics.New()

	gw := gateway.NewServer(cfg.Gateway, msgBus, store, reg, m, logger)

	lc := server.NewLifecycle(logger)
	lc.Add("registry-heartbeat", server.FuncService{
		StartFn: func(ctx context.Context) error {
			reg.StartHeartbeat(ctx)
			return nil
		},
		StopFn: func(ctx context.Context) error {
			reg.StopHeartbeat(ctx)
			return nil
		},
	})
	lc.Add("gateway", gw)
	if cfg.Metrics.Enabled {
		lc.Add("metrics", metricsService(cfg.Metrics.Addr, m, logger))
	}

	logger.Info("gateway ready", zap.Duration("elapsed", time.Since(start)))

	if err := lc.Run(ctx); err != nil {
		logger.Fatal("gateway exited", zap.Error(err))
	}
}

func metricsService(addr string, m *metrics.Metrics, logger *zap.Logger) server.Service {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux}

	return server.FuncService{
		StartFn: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			logger.Info("metrics listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server", zap.Error(err))
				}
			}()
			return nil
		},
		StopFn: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	}
}
