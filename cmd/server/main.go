package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/zentag/api/internal/bus"
	"github.com/zentag/api/internal/client"
	"github.com/zentag/api/internal/config"
	"github.com/zentag/api/internal/handler"
	"github.com/zentag/api/internal/lifecycle"
	"github.com/zentag/api/internal/middleware"
	"github.com/zentag/api/internal/service"
	"github.com/zentag/api/internal/store"
	ws "github.com/zentag/api/internal/websocket"
	"github.com/zentag/api/internal/worker"
	"github.com/zentag/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}

	level, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis not available", "addr", cfg.Redis.Addr, "err", err)
	}

	jobStore, closeStore, err := openStore(ctx, cfg, redisClient)
	if err != nil {
		log.Fatal("failed to open job store", "driver", cfg.Store.Driver, "err", err)
	}
	defer closeStore()
	log.Info("job store ready", "driver", cfg.Store.Driver)

	// Lifecycle fan-out
	hub := ws.NewHub()
	go hub.Run(ctx)

	notifiers := []lifecycle.Notifier{hub}
	if cfg.NATS.URL != "" {
		nc, err := bus.Connect(cfg.NATS.URL)
		if err != nil {
			log.Warn("NATS not available, lifecycle events disabled", "url", cfg.NATS.URL, "err", err)
		} else {
			defer nc.Close()
			notifiers = append(notifiers, bus.NewPublisher(nc, cfg.NATS.Subject))
			log.Info("publishing lifecycle events", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
		}
	}

	aiClient := client.NewAIClient(&cfg.AI)
	if !aiClient.IsConfigured() {
		log.Warn("AI service URLs not configured; submissions will fail")
	}

	// Initialize services
	reconciler := lifecycle.NewReconciler(jobStore, notifiers...)
	progressService := service.NewProgressService(jobStore, aiClient, reconciler)
	clipService := service.NewClipService(jobStore, aiClient, reconciler, cfg.Server.PublicBaseURL)
	streamService := service.NewStreamService(jobStore, aiClient, reconciler)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	var workerSrv *asynq.Server
	if cfg.Refresh.Enabled {
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()

		scheduler := worker.NewAsynqScheduler(asynqClient, time.Duration(cfg.Refresh.Interval)*time.Second, cfg.Refresh.MaxAttempts)
		clipService.WithRefresh(scheduler)
		streamService.WithRefresh(scheduler)

		workerSrv = startWorkerServer(cfg, redisOpt, worker.NewRefreshWorker(progressService, scheduler))
	}

	// Initialize handlers
	validate := validator.New()
	routes := handler.Routes{
		Clips:          handler.NewClipHandler(clipService, progressService, validate),
		Streams:        handler.NewStreamHandler(streamService, progressService, validate),
		Health:         handler.NewHealthHandler(jobStore),
		Auth:           authHandler(cfg),
		RateLimiter:    middleware.NewRateLimiter(redisClient),
		Hub:            hub,
		ClipsPerHour:   cfg.RateLimit.ClipsPerHour,
		StreamsPerHour: cfg.RateLimit.StreamsPerHour,
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    4 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	handler.RegisterRoutes(app, routes)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", "err", err)
		}
		if workerSrv != nil {
			workerSrv.Shutdown()
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info("server starting", "addr", addr, "env", cfg.Server.Env)
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", "err", err)
	}
}

// openStore builds the configured job store and a function releasing it.
func openStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (store.JobStore, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil

	case "postgres":
		if cfg.Postgres.DSN == "" {
			return nil, nil, fmt.Errorf("postgres driver selected but POSTGRES_DSN is empty")
		}
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		pg := store.NewPostgresStore(pool, cfg.Store.MaxRetries)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to migrate: %w", err)
		}
		return pg, pool.Close, nil

	case "redis", "":
		return store.NewRedisStore(redisClient, cfg.Store.MaxRetries), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func authHandler(cfg *config.Config) fiber.Handler {
	if cfg.JWT.Mode == "gateway" {
		log.Info("trusting gateway identity headers")
		return middleware.GatewayAuth()
	}
	return middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, refreshWorker *worker.RefreshWorker) *asynq.Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			worker.QueueRefresh: 1,
		},
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeRefresh, refreshWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Error("asynq worker error", "err", err)
		return nil
	}
	log.Info("refresh worker started", "interval", cfg.Refresh.Interval, "maxAttempts", cfg.Refresh.MaxAttempts)
	return srv
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch level {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	}
	return asynq.InfoLevel
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	switch code {
	case fiber.StatusNotFound:
		errCode = response.CodeNotFound
	case fiber.StatusBadRequest, fiber.StatusUpgradeRequired:
		errCode = response.CodeValidationError
	}

	return response.Error(c, code, errCode, message, nil)
}
