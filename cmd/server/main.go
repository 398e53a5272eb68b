package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"durableagent/internal/capabilities"
	"durableagent/internal/config"
	"durableagent/internal/coordinator"
	"durableagent/internal/eventstream"
	"durableagent/internal/executor"
	"durableagent/internal/handler"
	"durableagent/internal/llmprovider"
	"durableagent/internal/middleware"
	"durableagent/internal/queue"
	"durableagent/internal/runner"
	"durableagent/internal/session"
	"durableagent/internal/step"
	"durableagent/internal/store"
	"durableagent/internal/toolhost"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"redis_backed", cfg.RedisURL != "",
	)

	var (
		stateStore session.StateStore
		stream     session.EventStream
		wq         session.WorkQueue
	)

	ttl := time.Duration(cfg.SessionTTLSeconds) * time.Second
	eventTTL := time.Duration(cfg.EventTTLSeconds) * time.Second

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("parse REDIS_URL: %v", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		logger.Info("connected to redis", "addr", opt.Addr)

		stateStore = store.NewRedisStore(client, ttl)
		stream = eventstream.NewRedisStream(client, eventTTL, int64(config.DefaultEventLogMaxLength))

		if cfg.QueueCallbackURL == "" {
			log.Fatalf("QUEUE_CALLBACK_URL is required when REDIS_URL is set")
		}
		rdq := queue.NewRedisDelayQueue(client, cfg.QueueCallbackURL, logger)
		defer rdq.Close()
		wq = rdq
	} else {
		logger.Warn("REDIS_URL not set, falling back to single-process in-memory backends")
		stateStore = store.NewMemoryStore(ttl)
		stream = eventstream.NewMemoryStream(config.DefaultEventLogMaxLength)
	}

	providers := llmprovider.NewRegistry(cfg.DefaultProvider,
		llmprovider.NewMockProvider(24, "Thinking it over.", "Here's my answer."))

	tools := toolhost.DefaultRegistry()

	pricing, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("load model pricing capabilities: %v", err)
	}

	llmExec := &executor.LLMExecutor{
		Providers:       providers,
		DefaultProvider: cfg.DefaultProvider,
		DefaultModel:    cfg.DefaultModel,
		Stream:          stream,
		Pricing:         pricing,
	}
	toolExec := &executor.ToolExecutor{Host: tools, Stream: stream}
	approvalExec := &executor.HumanApprovalExecutor{Stream: stream}
	finishExec := &executor.FinishExecutor{Stream: stream}
	registry := executor.NewDefaultRegistry(llmExec, toolExec, approvalExec, finishExec)

	run := runner.Default(nil)

	// in-memory queue needs the engine to exist before it can schedule
	// callbacks directly (no HTTP hop); Redis-backed queue calls back over
	// HTTP to /execute-step instead.
	var engine *step.Engine
	if wq == nil {
		tq := queue.NewTimerQueue(func(ctx context.Context, task session.QueuedTask) {
			if _, err := engine.ExecuteStep(ctx, task); err != nil {
				logger.Error("in-memory queue callback failed", "session_id", task.SessionID, "error", err)
			}
		})
		wq = tq
	}
	engine = step.NewEngine(stateStore, stream, wq, registry, run)

	coord := coordinator.New(stateStore, stream, wq)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     strings.Join([]string{"GET", "POST", "DELETE", "OPTIONS"}, ","),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Cache-Control, Last-Event-ID",
		AllowCredentials: true,
	}))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })

	handler.Register(app, coord, engine, stream, stateStore, logger)

	go cleanupLoop(context.Background(), stateStore, logger)

	logger.Info("listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func cleanupLoop(ctx context.Context, store session.StateStore, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanupExpired(ctx)
			if err != nil {
				logger.Warn("cleanup expired sessions failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("cleaned up expired sessions", "count", n)
			}
		}
	}
}
