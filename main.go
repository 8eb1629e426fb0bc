package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/soundbeats/api"
	"github.com/wfunc/soundbeats/auth"
	"github.com/wfunc/soundbeats/broadcast"
	"github.com/wfunc/soundbeats/config"
	"github.com/wfunc/soundbeats/game"
	"github.com/wfunc/soundbeats/hass"
	"github.com/wfunc/soundbeats/instance"
	"github.com/wfunc/soundbeats/logger"
	"github.com/wfunc/soundbeats/media"
	"github.com/wfunc/soundbeats/monitor"
	"github.com/wfunc/soundbeats/persistence"
	sbrpc "github.com/wfunc/soundbeats/rpc"
	"github.com/wfunc/soundbeats/server"
	"github.com/wfunc/soundbeats/session"
	"github.com/wfunc/soundbeats/timer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Initialize logger
	if err := logger.Init("info", false); err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load configuration
	configPath := os.Getenv("SOUNDBEATS_CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		logger.Log.Fatalf("Invalid log configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := persistence.Open(ctx, persistence.Options{
		Driver:           cfg.Storage.Driver,
		PostgresHost:     cfg.Storage.Postgres.Host,
		PostgresPort:     cfg.Storage.Postgres.Port,
		PostgresUser:     cfg.Storage.Postgres.User,
		PostgresPassword: cfg.Storage.Postgres.Password,
		PostgresDBName:   cfg.Storage.Postgres.DBName,
		SQLitePath:       cfg.Storage.SQLite.Path,
		RedisAddr:        cfg.Storage.Redis.Addr,
		RedisPassword:    cfg.Storage.Redis.Password,
		RedisDB:          cfg.Storage.Redis.DB,
	})
	if err != nil {
		logger.Log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()
	logger.Log.Infow("storage ready", "driver", cfg.Storage.Driver)

	// Event bus, fanned out to websocket sessions
	bus, err := broadcast.NewBus(cfg.Events.NATSURL, logger.Named("bus"))
	if err != nil {
		logger.Log.Fatalf("Failed to start event bus: %v", err)
	}
	defer bus.Close()
	sessions := session.NewManager()
	if err := broadcast.Relay(ctx, bus, broadcast.NewSessionBroadcaster(sessions)); err != nil {
		logger.Log.Fatalf("Failed to subscribe to event bus: %v", err)
	}

	timers := timer.NewTimerManager()
	defer timers.Stop()
	mon := monitor.NewMonitor("soundbeats")
	registry := hass.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, cfg.HomeAssistant.RateLimit, cfg.HomeAssistant.Burst)

	instances := instance.NewManager()
	for _, ic := range cfg.Instances {
		inst := &instance.Instance{
			ID:           ic.ID,
			Name:         ic.Name,
			MaxTeams:     ic.MaxTeams,
			TimerSeconds: ic.TimerSeconds,
			Game: game.NewStore(ic.ID, timers,
				game.WithPublisher(broadcast.ForInstance(bus, ic.ID)),
				game.WithPersistence(store),
				game.WithMonitor(mon),
			),
		}
		if ic.MediaPlayer != "" {
			inst.Player = media.NewController(ic.ID, ic.MediaPlayer, registry, timers, media.WithMonitor(mon))
		}
		instances.Add(inst)
	}
	instances.LoadAll(ctx)
	logger.Log.Infow("instances loaded", "count", instances.Count())

	secret := cfg.Server.JWTSecret
	if secret == "" {
		secret = uuid.New().String()
		logger.Log.Warn("server.jwt_secret is not set, using a random secret; issued tokens will not survive a restart")
	}
	authService := auth.NewService(secret, cfg.Server.TokenTTL)
	dispatcher := api.NewDispatcher(instances, mon)

	opts := []server.Option{server.WithMonitor(mon), server.WithHeartbeat(cfg.Server.Heartbeat)}
	if cfg.Server.RPCAddress != "" {
		rpcServer, err := sbrpc.NewServer(cfg.Server.RPCAddress, map[string]interface{}{
			sbrpc.ServiceName: sbrpc.NewCommandService(dispatcher, authService),
		})
		if err != nil {
			logger.Log.Fatalf("Failed to create RPC server: %v", err)
		}
		opts = append(opts, server.WithRPC(rpcServer))
	}
	srv := server.NewServer(cfg.Server.HTTPAddress, dispatcher, instances, authService, sessions, opts...)

	// Start Server
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("Server shutdown: %v", err)
	}
	instances.SaveAll(shutdownCtx)
	logger.Log.Info("Soundbeats stopped")
}
