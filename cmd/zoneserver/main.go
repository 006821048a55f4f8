// Package main provides the zone server binary that simulates assigned
// zones and exchanges player traffic with gateways over the Redis bus.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/riftwalk/server/internal/bus"
	"github.com/riftwalk/server/internal/config"
	"github.com/riftwalk/server/internal/game/dice"
	"github.com/riftwalk/server/internal/metrics"
	"github.com/riftwalk/server/internal/npc"
	"github.com/riftwalk/server/internal/observability"
	"github.com/riftwalk/server/internal/registry"
	"github.com/riftwalk/server/internal/server"
	"github.com/riftwalk/server/internal/storage/postgres"
	"github.com/riftwalk/server/internal/world"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/zone.yaml", "path to configuration file")
	npcModel := flag.String("npc-model", "claude-haiku-4-5", "Anthropic model for companion chat; requires ANTHROPIC_API_KEY")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.Server.ID == "" {
		cfg.Server.ID = "zone-" + uuid.NewString()
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting zone server",
		zap.String("server_id", cfg.Server.ID),
		zap.Int("tick_rate", cfg.Simulation.TickRate),
		zap.Strings("assigned_zones", cfg.Server.AssignedZones),
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

	var responder npc.Responder
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		responder = npc.NewAnthropicResponder(apiKey, *npcModel)
		logger.Info("companion chat enabled", zap.String("model", *npcModel))
	} else {
		logger.Info("companion chat disabled, ANTHROPIC_API_KEY not set")
	}
	npcs := npc.NewController(responder, logger)

	worldMgr := world.New(world.Deps{
		Server:     cfg.Server,
		Simulation: cfg.Simulation,
		Bus:        msgBus,
		Store:      store,
		Registry:   reg,
		NPCs:       npcs,
		Metrics:    m,
		Logger:     logger,
		Dice:       dice.NewCryptoSource(),
	})

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
	lc.Add("world", worldMgr)
	if cfg.Metrics.Enabled {
		lc.Add("metrics", metricsService(cfg.Metrics.Addr, m, logger))
	}

	logger.Info("zone server ready", zap.Duration("elapsed", time.Since(start)))

	if err := lc.Run(ctx); err != nil {
		logger.Fatal("zone server exited", zap.Error(err))
	}
}

// metricsService serves /metrics on its own listener so operational scrapes
// never share a port with game traffic.
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
