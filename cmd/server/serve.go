package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/storyreel/api/internal/events"
	"github.com/storyreel/api/internal/handler"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/queue"
	"github.com/storyreel/api/internal/service"
	ws "github.com/storyreel/api/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API together with the pipeline workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	var orch *service.Orchestrator
	switch cfg.Queue.Backend {
	case "local", "":
		lq := queue.NewLocalQueue(cfg.Queue.Concurrency)
		orch = c.orchestrator(lq, hub)
		lq.Start(c.runner.Handler(orch))
		defer lq.Close()
	case "asynq":
		asynqClient := asynq.NewClient(c.redisOpt())
		defer asynqClient.Close()

		// Progress may be committed by any worker process, so the hub is fed from Redis
		if err := events.Relay(ctx, c.redis, hub); err != nil {
			return fmt.Errorf("failed to subscribe to job events: %w", err)
		}
		orch = c.orchestrator(queue.NewAsynqQueue(asynqClient, cfg.Queue.Name), events.NewRedisPublisher(c.redis))

		srv := queue.NewAsynqServer(c.redisOpt(), cfg.Queue.Concurrency, cfg.Queue.Name, log.StandardLogger())
		if err := srv.Start(queue.NewServeMux(c.runner.Handler(orch))); err != nil {
			return fmt.Errorf("failed to start asynq server: %w", err)
		}
		defer srv.Shutdown()
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}

	app := newApp(c, orch, hub)

	go func() {
		<-ctx.Done()
		log.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Infof("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newApp(c *core, orch *service.Orchestrator, hub *ws.Hub) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          handler.ErrorHandler,
		BodyLimit:             1024 * 1024,
		DisableStartupMessage: true,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(c.cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	var authenticate fiber.Handler
	if c.cfg.JWT.Enabled {
		authenticate = middleware.NewAuthMiddleware(c.cfg.JWT.Secret).Authenticate()
	}

	handler.RegisterRoutes(app, handler.Routes{
		Health: handler.NewHealthHandler(c.providers, handler.Backends{
			Storage:  c.artifacts.Name(),
			JobStore: c.cfg.JobStore.Backend,
			Queue:    c.cfg.Queue.Backend,
		}, c.cfg.JWT.Enabled),
		Video:         handler.NewVideoHandler(orch, c.artifacts, c.catalog, hub, validator.New()),
		Auth:          authenticate,
		GenerateLimit: middleware.NewRateLimiter(c.redis).GenerateLimit(c.cfg.RateLimit.GeneratePerHour),
	})

	return app
}
