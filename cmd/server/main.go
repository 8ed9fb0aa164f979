package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/framebeat/api/internal/client"
	"github.com/framebeat/api/internal/config"
	"github.com/framebeat/api/internal/handler"
	"github.com/framebeat/api/internal/ledger"
	"github.com/framebeat/api/internal/logging"
	"github.com/framebeat/api/internal/media"
	"github.com/framebeat/api/internal/middleware"
	"github.com/framebeat/api/internal/model"
	"github.com/framebeat/api/internal/service"
	"github.com/framebeat/api/internal/storage"
	ws "github.com/framebeat/api/internal/websocket"
	"github.com/framebeat/api/internal/worker"
)

// @title          Framebeat API
// @version        1.0
// @description    Adds a recognized soundtrack to uploaded videos.
// @host           localhost:3000
// @BasePath       /
// @schemes        http https
func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	baseLogger := logging.Setup(logging.Options{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
		Dev:    cfg.IsDevelopment(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Working directories and retention sweep
	store, err := storage.New(cfg.Storage.Root, cfg.Storage.MaxAge)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare storage")
	}
	store.Sweep(time.Now())
	store.StartSweeper(ctx, cfg.Storage.SweepInterval)

	counter := ledger.NewCounter(store.LedgerPath(ledger.CounterFile))
	if err := counter.Ensure(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize usage ledger")
	}
	ratings := ledger.NewRatings(store.LedgerPath(ledger.RatingsFile))

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	runner := media.ExecRunner{Timeout: cfg.Media.Timeout}
	visionClient, err := client.NewVisionClient(ctx, &cfg.Recognition)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create recognition client")
	}
	defer visionClient.Close()
	if !visionClient.IsConfigured() {
		log.Warn().Str("provider", cfg.Recognition.Provider).Msg("recognition API key missing, every job will use the unknown identity")
	}
	selectorClient := client.NewSelectorClient(&cfg.Selector)

	// Initialize R2 client (optional - continues if not configured)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn().Err(err).Msg("R2 client not initialized")
		}
	} else {
		log.Info().Msg("R2 storage not configured, artifacts stay local")
	}

	deps := service.PipelineDeps{
		Prober:    media.NewProber(cfg.Media.FFprobe, runner),
		Sampler:   media.NewFrameSampler(cfg.Media.FFmpeg, runner),
		Composer:  media.SheetComposer{},
		Recognize: newRecognizer(visionClient, cfg.Recognition.Timeout),
		Selector:  selectorClient,
		Muxer:     media.NewMuxer(cfg.Media.FFmpeg, runner),
		Counter:   counter,
	}
	if r2Client.IsConfigured() {
		deps.Publisher = r2Client
	}
	pipelineService := service.NewPipelineService(store, deps)

	// Redis backs async jobs and rate limiting; both are skipped without it
	var (
		redisClient *redis.Client
		jobs        handler.AsyncJobs
		jobService  *service.JobService
	)
	candidate := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	if err := candidate.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis not available, async jobs and rate limiting disabled")
		candidate.Close()
	} else {
		redisClient = candidate
		defer redisClient.Close()
	}
	cancelPing()

	if redisClient != nil {
		asynqClient := asynq.NewClient(redisOpt(cfg))
		defer asynqClient.Close()
		jobService = service.NewJobService(redisClient, asynqClient)
		jobs = jobService
	}

	// Initialize handlers
	processHandler := handler.NewProcessHandler(pipelineService, store, jobs, hub)
	usageHandler := handler.NewUsageHandler(counter, ratings, validate)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Debug().Msg("debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"recognition": visionClient.IsConfigured(),
				"r2":          r2Client.IsConfigured(),
				"redis":       redisClient != nil,
			},
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Generated artifacts
	app.Static("/outputs", store.OutputsDir)
	app.Static("/frames", store.FramesDir)

	// API routes
	api := app.Group("/api")
	process := api.Group("/process", rateLimiter.ProcessLimit(cfg.RateLimit.ProcessPerHour))
	process.Post("/", processHandler.Process)
	process.Post("/async", processHandler.ProcessAsync)
	api.Get("/jobs/:jobId", processHandler.JobStatus)
	api.Post("/rating", usageHandler.Rate)
	api.Get("/stats", usageHandler.Stats)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	if jobService != nil && cfg.Worker.Enabled {
		go startWorkerServer(cfg, baseLogger, pipelineService, jobService, hub)
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Str("storage", cfg.Storage.Root).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// timedRecognizer bounds each recognition call with the configured timeout.
type timedRecognizer struct {
	svc     *service.RecognitionService
	timeout time.Duration
}

func newRecognizer(vision client.VisionClient, timeout time.Duration) service.Recognizer {
	return &timedRecognizer{svc: service.NewRecognitionService(vision), timeout: timeout}
}

func (r *timedRecognizer) Recognize(ctx context.Context, imagePath string) model.Identity {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.svc.Recognize(ctx, imagePath)
}

func startWorkerServer(
	cfg *config.Config,
	baseLogger zerolog.Logger,
	pipelineService *service.PipelineService,
	jobService *service.JobService,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				service.QueuePipeline: 1,
			},
			LogLevel: asynqLogLevel,
			Logger:   logging.AsynqLogger{Logger: baseLogger.With().Str("component", "asynq").Logger()},
		},
	)

	pipelineWorker := worker.NewPipelineWorker(pipelineService, jobService, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypePipeline, pipelineWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Error().Err(err).Msg("asynq worker error")
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
