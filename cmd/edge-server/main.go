package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hasancaglar07/usercomments-edge/internal/config"
	"github.com/hasancaglar07/usercomments-edge/internal/data"
	"github.com/hasancaglar07/usercomments-edge/internal/server"
	"github.com/hasancaglar07/usercomments-edge/pkg/edgecache"
	"github.com/hasancaglar07/usercomments-edge/pkg/logging"
	"github.com/hasancaglar07/usercomments-edge/pkg/purge"
	"github.com/hasancaglar07/usercomments-edge/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.Setup(logging.DefaultConfig())
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	ctx := context.Background()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable")
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	db, err := data.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres unreachable")
	}
	defer db.Close()

	store := edgecache.NewRedisStore(redisClient, edgecache.HotLayerConfig{
		Capacity: 2048,
		Shards:   64,
		TTL:      cfg.HotCacheTTL,
	})
	limiter := ratelimit.NewLimiter(cfg.BucketSweepThreshold, logging.NewLogger("ratelimit"))
	dispatcher := purge.NewDispatcher(store, logging.NewLogger("purge"), cfg.PurgeConcurrency)

	srv := server.New(cfg, store, db, limiter, dispatcher,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		logging.NewLogger("server"))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("origin", cfg.Origin).Msg("edge server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	// Let in-flight purge batches land before the process exits.
	if err := dispatcher.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("purge drain incomplete")
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn().Err(err).Msg("redis close")
	}
}
