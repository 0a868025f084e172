package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roundtable-games/avalon-server/internal/cache"
	"github.com/roundtable-games/avalon-server/internal/config"
	"github.com/roundtable-games/avalon-server/internal/database"
	"github.com/roundtable-games/avalon-server/internal/httpapi"
	"github.com/roundtable-games/avalon-server/internal/logger"
	"github.com/roundtable-games/avalon-server/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", false)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx := context.Background()

	dbPool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect")
	}
	defer dbPool.Close()
	log.Info().Msg("connected to database")

	if err := database.Migrate(ctx, dbPool, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("database migrate")
	}
	log.Info().Msg("migrations up to date")

	// The cache holds sessions, room membership, and game snapshots; the
	// server does not start without it.
	cacheClient, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}
	defer cacheClient.Close()
	log.Info().Msg("connected to redis")

	if len(cfg.TokenSecret) == 0 {
		log.Warn().Msg("WEBSOCKET_TOKEN_SECRET not set; websocket connections are unauthenticated")
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit {
		limiter = httpapi.DefaultRateLimiter()
	}
	router := httpapi.NewRouter(dbPool, cacheClient, cfg.TokenSecret, limiter, log)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("avalon backend listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
