package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/medsimlabs/vitalcast/internal/broadcast"
	"github.com/medsimlabs/vitalcast/internal/config"
	"github.com/medsimlabs/vitalcast/internal/coordination"
	"github.com/medsimlabs/vitalcast/internal/database"
	"github.com/medsimlabs/vitalcast/internal/dispatcher"
	"github.com/medsimlabs/vitalcast/internal/logging"
	"github.com/medsimlabs/vitalcast/internal/server"
	goredis "github.com/redis/go-redis/v9"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// setupLeadership picks Redis-backed leader election when REDIS_URL is set,
// otherwise the instance runs standalone and always dispatches.
func setupLeadership(cfg *config.Config) (coordination.Leadership, *goredis.Client) {
	if cfg.RedisURL == "" {
		slog.Info("No Redis configured, running standalone dispatcher")
		return coordination.Standalone{}, nil
	}

	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	// Lease must outlive a full tick interval so the leader keeps renewing
	ttl := 2 * cfg.DispatchInterval
	if ttl < 30*time.Second {
		ttl = 30 * time.Second
	}

	return coordination.NewLeaderElection(client, instanceID, ttl), client
}

func runGracefulShutdown(srv *server.Server, disp *dispatcher.Dispatcher, hub *broadcast.Hub, leadership coordination.Leadership) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		disp.Stop()
		hub.Stop()

		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if err := leadership.Release(releaseCtx); err != nil {
			slog.Error("Failed to release leadership", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	leadership, redisClient := setupLeadership(cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	store := database.NewDispatchRepo(pool)
	hub := broadcast.NewHub(clock)

	disp := dispatcher.New(store, hub, leadership, clock, dispatcher.Options{
		Interval:    cfg.DispatchInterval,
		BatchLimit:  cfg.DispatchBatchLimit,
		MaxAttempts: cfg.MaxDispatchAttempts,
	})
	go disp.Run(context.Background())

	// Pass nil explicitly to avoid a typed-nil interface
	var srv *server.Server
	if redisClient != nil {
		srv = server.NewServer(cfg, store, hub, pool, redisClient)
	} else {
		srv = server.NewServer(cfg, store, hub, pool, nil)
	}

	done := runGracefulShutdown(srv, disp, hub, leadership)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
