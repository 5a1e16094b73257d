package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/talecraft/api/internal/auth"
	"github.com/talecraft/api/internal/client"
	"github.com/talecraft/api/internal/config"
	"github.com/talecraft/api/internal/handler"
	"github.com/talecraft/api/internal/logger"
	"github.com/talecraft/api/internal/metrics"
	"github.com/talecraft/api/internal/middleware"
	"github.com/talecraft/api/internal/model"
	"github.com/talecraft/api/internal/repository"
	"github.com/talecraft/api/internal/server"
	"github.com/talecraft/api/internal/service"
	"github.com/talecraft/api/internal/storage"
	"github.com/talecraft/api/internal/worker"
)

const (
	DispatcherAsynq  = "asynq"
	DispatcherInline = "inline"

	shutdownTimeout = 10 * time.Second
)

// App is the assembled service: HTTP surface plus background workers
type App struct {
	HTTP      *fiber.App
	Service   *service.FairytaleService
	Reclaimer *worker.Reclaimer

	cfg        *config.Config
	log        zerolog.Logger
	pool       *worker.PoolDispatcher
	asynqSrv   *asynq.Server
	asynqMux   *asynq.ServeMux
	scheduler  *worker.Scheduler
	closers    []func() error
	cancelRuns context.CancelFunc
}

// Build wires every component from cfg. rdb backs rate limiting, the redis
// job store and the asynq queue.
func Build(cfg *config.Config, log zerolog.Logger, rdb *redis.Client, reg *prometheus.Registry) (*App, error) {
	a := &App{cfg: cfg, log: log}

	repo, err := a.newRepository(rdb)
	if err != nil {
		return nil, err
	}
	store, err := newArtifactStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	pipelineMetrics := metrics.New(reg)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	openRouter := client.NewOpenRouterClient(&cfg.OpenRouter)
	elevenLabs := client.NewElevenLabsClient(&cfg.ElevenLabs)

	textGen := service.NewTextGenerator(
		openRouter,
		service.NewLanguageDetector(cfg.Pipeline.WrongLanguageMatchThreshold, cfg.Pipeline.OpeningWindow),
		service.TextGeneratorConfig{
			MaxAttempts:         cfg.Pipeline.TextMaxAttempts,
			Backoff:             cfg.Pipeline.TextRetryBackoff,
			ForceTargetLanguage: true,
		},
		logger.Component(log, "text_generator"),
	)
	audioSynth := service.NewAudioSynthesizer(elevenLabs, store, service.AudioSynthesizerConfig{
		MaxChunkChars: cfg.Pipeline.MaxChunkChars,
		MinAudioBytes: cfg.Pipeline.MinAudioBytes,
	}, logger.Component(log, "audio_synthesizer"))

	orchestrator := worker.NewOrchestrator(repo, textGen, audioSynth, store, pipelineMetrics, log)
	a.Reclaimer = worker.NewReclaimer(repo, cfg.Pipeline.ReclaimTimeout, pipelineMetrics, log)

	dispatcher, err := a.newDispatcher(orchestrator)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.scheduler = worker.NewScheduler(log)
	if err := a.scheduler.ScheduleSweep(cfg.Pipeline.ReclaimSchedule, a.Reclaimer, time.Minute); err != nil {
		a.Close()
		return nil, err
	}

	a.Service = service.NewFairytaleService(repo, store, dispatcher, a.Reclaimer, pipelineMetrics, log).
		WithStaleRunAfter(cfg.Pipeline.ReclaimTimeout)

	authenticator, err := a.newAuthenticator()
	if err != nil {
		a.Close()
		return nil, err
	}

	apiAuth := middleware.NewAuthMiddleware(authenticator).Authenticate()
	if cfg.Gateway.Enabled {
		log.Info().Msg("gateway mode enabled, using header-based auth")
		apiAuth = middleware.GatewayAuthMiddleware()
	}

	audioDir := ""
	if fs, ok := store.(*storage.FileStore); ok {
		audioDir = fs.BasePath()
	}

	a.HTTP = server.New(server.Options{
		Log:        log,
		Fairytales: handler.NewFairytaleHandler(a.Service, log),
		Auth:       handler.NewAuthHandler(authenticator),
		Health: handler.NewHealthHandler(map[string]bool{
			"openrouter": openRouter.IsConfigured(),
			"elevenlabs": elevenLabs.IsConfigured(),
			"r2":         cfg.Storage.Driver == "r2",
			"auth":       cfg.Zitadel.Issuer != "" || cfg.JWT.Secret != "",
		}, func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		APIAuth:           apiAuth,
		RateLimiter:       middleware.NewRateLimiter(rdb, log),
		FairytalesPerHour: cfg.RateLimit.FairytalesPerHour,
		AdminSecret:       cfg.Server.AdminSecret,
		Metrics:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AudioDir:          audioDir,
	})

	return a, nil
}

func (a *App) newRepository(rdb *redis.Client) (repository.FairytaleRepository, error) {
	switch a.cfg.Store.Driver {
	case "sqlite":
		repo, err := repository.NewSQLiteRepository(a.cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil
	case "redis", "":
		return repository.NewRedisRepository(rdb, a.cfg.Store.RecordTTL), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
}

func newArtifactStore(cfg *config.Config) (storage.ArtifactStore, error) {
	switch cfg.Storage.Driver {
	case "r2":
		return storage.NewR2Store(&cfg.R2)
	case "filesystem", "":
		return storage.NewFileStore(cfg.Storage.Dir, cfg.Storage.PublicURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func (a *App) newDispatcher(runner worker.PipelineRunner) (service.Dispatcher, error) {
	switch a.cfg.Pipeline.Dispatcher {
	case DispatcherInline:
		ctx, cancel := context.WithCancel(context.Background())
		pool, err := worker.NewPoolDispatcher(ctx, a.cfg.Pipeline.Concurrency, runner, a.log)
		if err != nil {
			cancel()
			return nil, err
		}
		a.pool = pool
		a.cancelRuns = cancel
		return pool, nil

	case DispatcherAsynq, "":
		redisOpt := asynq.RedisClientOpt{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		}
		asynqClient := asynq.NewClient(redisOpt)
		a.closers = append(a.closers, asynqClient.Close)

		a.asynqSrv = asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: a.cfg.Pipeline.Concurrency,
			Queues:      map[string]int{model.TaskQueueFairytales: 1},
			LogLevel:    asynqLogLevel(a.cfg.Server.LogLevel),
			Logger:      asynqLogger{log: logger.Component(a.log, "asynq")},
		})
		a.asynqMux = asynq.NewServeMux()
		worker.NewTaskHandler(runner, a.log).Register(a.asynqMux)
		return worker.NewAsynqDispatcher(asynqClient), nil

	default:
		return nil, fmt.Errorf("unknown pipeline dispatcher %q", a.cfg.Pipeline.Dispatcher)
	}
}

func (a *App) newAuthenticator() (*auth.Authenticator, error) {
	var verifier auth.TokenVerifier
	if a.cfg.Zitadel.Issuer != "" {
		jwks, err := auth.NewJWKSVerifier(&a.cfg.Zitadel)
		if err != nil {
			a.log.Warn().Err(err).Msg("JWKS verifier not initialized, falling back to legacy tokens")
		} else {
			verifier = jwks
			a.closers = append(a.closers, jwks.Close)
		}
	}
	if verifier == nil && a.cfg.JWT.Secret == "" && !a.cfg.Gateway.Enabled {
		return nil, fmt.Errorf("no authentication configured: set ZITADEL_ISSUER or JWT_SECRET")
	}
	return auth.NewAuthenticator(verifier, a.cfg.JWT.Secret), nil
}

// Start launches the background workers and the stuck-job scheduler
func (a *App) Start() error {
	if a.asynqSrv != nil {
		if err := a.asynqSrv.Start(a.asynqMux); err != nil {
			return fmt.Errorf("failed to start task server: %w", err)
		}
	}
	a.scheduler.Start()
	return nil
}

// Close stops accepting work, waits for running pipelines and releases resources
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.asynqSrv != nil {
		a.asynqSrv.Shutdown()
	}
	if a.pool != nil {
		if err := a.pool.Release(shutdownTimeout); err != nil {
			a.log.Warn().Err(err).Msg("pipeline runs still active at shutdown")
			a.cancelRuns()
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
}

// WaitIdle blocks until inline pipeline runs have finished
func (a *App) WaitIdle() {
	if a.pool != nil {
		a.pool.Wait()
	}
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

// asynqLogger routes asynq's internal logs through zerolog
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
