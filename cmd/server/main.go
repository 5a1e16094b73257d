package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/talecraft/api/internal/app"
	"github.com/talecraft/api/internal/config"
	"github.com/talecraft/api/internal/logger"
)

// @title          Talecraft API
// @version        1.0
// @description    Asynchronous fairytale generation: story text from an LLM, narration from a TTS provider.
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(os.Getenv("SERVER_ENV"), "")
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.Server.Env, cfg.Server.LogLevel)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not available")
	}
	cancel()

	application, err := app.Build(cfg, log, redisClient, prometheus.NewRegistry())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application")
	}
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start workers")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		if err := application.HTTP.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().
		Str("addr", addr).
		Str("store", cfg.Store.Driver).
		Str("storage", cfg.Storage.Driver).
		Str("dispatcher", cfg.Pipeline.Dispatcher).
		Msg("server starting")
	if err := application.HTTP.Listen(addr); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	application.Close()
	log.Info().Msg("shutdown complete")
}
