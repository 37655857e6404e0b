// Package main Signaling Broker API
//
//	@title			Signaling Broker API
//	@version		1.0
//	@description	WebRTC signaling broker: rooms, broadcasts, chat relay, and authentication.
//
//	@contact.name	Broker Support
//	@contact.url	https://github.com/observer/broker
//	@contact.email	support@broker.example.com
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:3001
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT token (format: Bearer <token>)
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/observer/broker/internal/api"
	"github.com/observer/broker/internal/auth"
	"github.com/observer/broker/internal/broker"
	"github.com/observer/broker/internal/config"
	"github.com/observer/broker/internal/database"
	"github.com/observer/broker/internal/pubsub"
	"github.com/observer/broker/internal/ratelimit"
	"github.com/observer/broker/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	if err := database.EnsureSchema(ctx, db, "migrations"); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	userRepo := database.NewUserRepository(db)
	roomRepo := database.NewRoomRepository(db)

	// AUTH_SECRET is already guaranteed non-empty by config.Load's
	// validate(); a short secret is still a fatal misconfiguration.
	tokenService, err := auth.NewTokenService(cfg.AuthSecret)
	if err != nil {
		slog.Error("failed to create token service", "error", err)
		os.Exit(1)
	}
	authService := auth.NewService(userRepo, tokenService)

	var ps pubsub.PubSub
	if cfg.PubSubType == "redis" && cfg.RedisURL != "" {
		rps, err := pubsub.NewRedisPubSub(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		ps = rps
		slog.Info("using redis pubsub", "url", cfg.RedisURL)
	} else {
		ps = pubsub.NewMemoryPubSub()
		slog.Info("using in-memory pubsub")
	}
	defer ps.Close()

	chatLimiter := ratelimit.NewChatLimiter()
	restLimiter := ratelimit.NewRESTLimiter(100, 15*60)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			restLimiter.Cleanup()
		}
	}()

	persistCtx, persistCancel := context.WithCancel(context.Background())
	defer persistCancel()
	persistQueue := broker.NewPersistQueue(persistCtx, 256, logger)

	hub := broker.NewHub(roomRepo, chatLimiter, persistQueue, ps, logger)
	wsHandler := broker.NewHandler(hub, authService, logger)

	authHandler := api.NewAuthHandler(authService, logger)
	roomHandler := api.NewRoomHandler(roomRepo, logger)
	healthHandler := api.NewHealthHandler(hub)

	deps := &server.Dependencies{
		DB:          db,
		AuthService: authService,
		AuthHandler: authHandler,
		RoomHandler: roomHandler,
		Health:      healthHandler,
		WSHandler:   wsHandler,
		RESTLimiter: restLimiter,
		Logger:      logger,
	}

	srv := server.New(cfg, deps)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting broker", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("broker stopped")
}
