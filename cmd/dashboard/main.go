package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"geografica/internal/apiclient"
	"geografica/internal/config"
	"geografica/internal/handler"
	"geografica/internal/logger"
	"geografica/internal/middleware"
	"geografica/internal/realtime"
	"geografica/internal/server"
	"geografica/internal/service"
	"geografica/internal/session"

	_ "geografica/docs"
)

// @title Geografica Dashboard API
// @version 1.0
// @description Guardian dashboard for family location tracking. Routes under /api require a guardian logged in through /api/auth/login; the session is held by the dashboard process.

// @host localhost:3000
// @BasePath /api

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, "geografica-dashboard")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting dashboard",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("realtime_url", cfg.RealtimeURL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Redis
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("Connected to Redis")
	}

	var store session.Store
	if cfg.Session.Backend == config.SessionBackendRedis {
		store = session.NewRedisStore(redisClient, cfg.Session.RedisKey)
	} else {
		store = session.NewFileStore(cfg.Session.FilePath)
	}

	api := apiclient.New(cfg.APIBaseURL, cfg.RequestTimeout, log)
	auth, err := apiclient.NewAuthClient(ctx, api, store, log)
	if err != nil {
		log.Fatal("Failed to restore session", zap.Error(err))
	}
	defer auth.Close()

	children := apiclient.NewChildClient(api, auth)
	safeZones := apiclient.NewSafeZoneClient(api)
	records := apiclient.NewHistoryClient(api)

	channel := realtime.NewChannel(cfg.RealtimeURL, auth, log)

	tracker := service.NewLiveTracker(redisClient, cfg.RedisPrefix, cfg.LiveTTL, log)
	if n, err := tracker.Restore(ctx); err != nil {
		log.Warn("Failed to restore live shadow", zap.Error(err))
	} else if n > 0 {
		log.Info("Live shadow restored", zap.Int("children", n))
	}
	tracker.Attach(ctx, channel)

	zones := service.NewZoneWatcher(safeZones, log)
	zones.Attach(ctx, channel)

	// Connect to NATS
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name("geografica-dashboard"))
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Close()
		log.Info("Connected to NATS")

		service.NewEventBridge(natsConn, cfg.NATSSubjectPrefix, log).Attach(ctx, channel, zones)
	}

	outboxStore, err := openOutboxStore(cfg, log)
	if err != nil {
		log.Fatal("Failed to open outbox", zap.Error(err))
	}
	outbox := service.NewOutbox(outboxStore, records, log)
	go outbox.Run(ctx, cfg.OutboxFlushInterval)

	hub := handler.NewWSHub(log)
	go hub.Run()
	hub.Attach(ctx, channel, zones)

	deps := server.Deps{
		Auth:      auth,
		Children:  children,
		SafeZones: safeZones,
		History:   service.NewHistoryService(records, log),
		Outbox:    outbox,
		Channel:   channel,
		Tracker:   tracker,
		Zones:     zones,
		Hub:       hub,
		Redis:     redisClient,
		NATS:      natsConn,
	}
	if redisClient != nil {
		deps.Limiter = middleware.NewRedisRateLimiter(redisClient, cfg.RedisPrefix)
	}

	srv := server.NewServer(cfg, deps, log)
	srv.Setup()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	log.Info("Dashboard stopped")
}

func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func openOutboxStore(cfg *config.Config, log *zap.Logger) (service.OutboxStore, error) {
	if cfg.DatabaseURL == "" {
		log.Info("No database configured, offline records are kept in memory")
		return service.NewMemoryOutboxStore(), nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Connected to database")

	if err := service.MigrateOutbox(db); err != nil {
		return nil, err
	}
	log.Info("Outbox migrated")
	return service.NewGormOutboxStore(db), nil
}
