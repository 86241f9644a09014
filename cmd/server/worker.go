package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/storyreel/api/internal/events"
	"github.com/storyreel/api/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run an asynq worker that executes pipeline stages",
	Long:  `Starts an asynq worker consuming stage tasks. Job records and artifacts must live in shared backends (redis job store, disk or s3 storage).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context())
	},
}

func runWorker(parent context.Context) error {
	if cfg.JobStore.Backend != "redis" {
		return errors.New("worker requires jobstore.backend=redis")
	}
	if cfg.Storage.Backend == "memory" {
		return errors.New("worker requires a shared storage backend (disk or s3)")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close()

	asynqClient := asynq.NewClient(c.redisOpt())
	defer asynqClient.Close()

	orch := c.orchestrator(queue.NewAsynqQueue(asynqClient, cfg.Queue.Name), events.NewRedisPublisher(c.redis))
	srv := queue.NewAsynqServer(c.redisOpt(), cfg.Queue.Concurrency, cfg.Queue.Name, log.StandardLogger())

	log.WithFields(log.Fields{
		"concurrency": cfg.Queue.Concurrency,
		"queue":       cfg.Queue.Name,
	}).Info("Starting asynq worker")
	if err := srv.Start(queue.NewServeMux(c.runner.Handler(orch))); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}

	<-ctx.Done()
	log.Info("Shutdown signal received, stopping worker")
	srv.Shutdown()
	return nil
}
