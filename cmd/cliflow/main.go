package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"

	"github.com/delacruz/cliflow-go/internal/api"
	"github.com/delacruz/cliflow-go/internal/config"
	"github.com/delacruz/cliflow-go/internal/events"
	"github.com/delacruz/cliflow-go/internal/execkit"
	"github.com/delacruz/cliflow-go/internal/logger"
	"github.com/delacruz/cliflow-go/internal/orchestrator"
	"github.com/delacruz/cliflow-go/internal/queue"
	"github.com/delacruz/cliflow-go/internal/registry"
	"github.com/delacruz/cliflow-go/internal/retrypolicy"
	"github.com/delacruz/cliflow-go/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("Starting cliflow...")

	st, err := store.Open(postgres.Open(cfg.Database.DSN()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close state store")
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Events.Addr,
		Password:     cfg.Events.Password,
		DB:           cfg.Events.DB,
		PoolSize:     cfg.Events.PoolSize,
		MinIdleConns: cfg.Events.MinIdleConns,
		DialTimeout:  cfg.Events.DialTimeout,
		ReadTimeout:  cfg.Events.ReadTimeout,
		WriteTimeout: cfg.Events.WriteTimeout,
	})
	publisher := events.NewRedisPubSub(redisClient)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	reg := registry.NewWithBuiltins()
	exec := execkit.New()

	q := queue.New(st, queue.Config{
		WorkerID:          cfg.Queue.WorkerID,
		Concurrency:       cfg.Queue.Concurrency,
		PollInterval:      cfg.Queue.PollInterval,
		Batch:             cfg.Queue.Batch,
		LeaseDuration:     cfg.Queue.LeaseDuration,
		HeartbeatInterval: cfg.Queue.HeartbeatInterval,
		RetryPolicy: &retrypolicy.Policy{
			InitialBackoff: cfg.Queue.RetryBaseBackoff,
			MaxBackoff:     cfg.Queue.RetryMaxBackoff,
			BackoffFactor:  2.0,
			JitterFactor:   0.1,
		},
	})

	orch := orchestrator.New(st, reg, q, exec, publisher, orchestrator.Config{
		DefaultTaskTimeout: cfg.Orchestrator.DefaultTaskTimeout,
		DefaultMaxRetries:  cfg.Orchestrator.DefaultMaxRetries,
		RetryBackoff:       cfg.Orchestrator.RetryBackoff,
		ReconcileInterval:  cfg.Orchestrator.ReconcileInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start orchestrator")
	}

	server := api.NewServer(cfg, orch, st, publisher)
	server.Start(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down cliflow...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	server.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if err := orch.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Orchestrator shutdown error")
	}

	log.Info().Msg("cliflow stopped")
}
