package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/artifact"
	"github.com/storyreel/api/internal/catalog"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/jobstore"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/pipeline"
	"github.com/storyreel/api/internal/queue"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/internal/worker"
)

const janitorInterval = 10 * time.Minute

// core holds the components shared by the serve and worker commands
type core struct {
	cfg       *config.Config
	redis     *redis.Client
	artifacts artifact.Store
	jobs      jobstore.Store
	catalog   *catalog.Catalog
	providers client.ProviderStatus
	runner    *worker.Runner
}

func newCore(ctx context.Context, cfg *config.Config) (*core, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis not available")
	}

	artifacts, err := newArtifactStore(cfg.Storage)
	if err != nil {
		redisClient.Close()
		return nil, err
	}

	jobs, err := newJobStore(ctx, cfg.JobStore, redisClient, artifacts)
	if err != nil {
		redisClient.Close()
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		redisClient.Close()
		return nil, err
	}

	executors, providers := client.NewExecutors(cfg)
	runner := worker.NewRunner(executors, artifacts, cat, worker.TimeoutsFromConfig(cfg.Pipeline.Timeouts))

	log.WithFields(log.Fields{
		"storage":  artifacts.Name(),
		"jobstore": cfg.JobStore.Backend,
		"queue":    cfg.Queue.Backend,
		"stories":  len(cat.List()),
	}).Info("Pipeline components ready")

	return &core{
		cfg:       cfg,
		redis:     redisClient,
		artifacts: artifacts,
		jobs:      jobs,
		catalog:   cat,
		providers: providers,
		runner:    runner,
	}, nil
}

func (c *core) orchestrator(q queue.TaskQueue, notifier service.Notifier) *service.Orchestrator {
	p := c.cfg.Pipeline
	return service.NewOrchestrator(c.jobs, q, c.catalog, service.Options{
		Retry: pipeline.RetryPolicy{
			MaxAttempts: p.MaxAttempts,
			BaseDelay:   time.Duration(p.BackoffBaseMs) * time.Millisecond,
			MaxDelay:    time.Duration(p.BackoffMaxMs) * time.Millisecond,
			Multiplier:  2,
			Jitter:      0.1,
		},
		MinDuration: p.MinDuration,
		MaxDuration: p.MaxDuration,
		Notifier:    notifier,
		Artifacts:   c.artifacts,
	})
}

func (c *core) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	}
}

func (c *core) close() {
	c.redis.Close()
}

func newArtifactStore(sc config.StorageConfig) (artifact.Store, error) {
	switch sc.Backend {
	case "memory":
		return artifact.NewMemoryStore(), nil
	case "disk", "":
		return artifact.NewDiskStore(sc.Dir)
	case "s3":
		store, err := artifact.NewS3Store(&sc.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 storage: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
}

func newJobStore(ctx context.Context, jc config.JobStoreConfig, redisClient *redis.Client, artifacts artifact.Store) (jobstore.Store, error) {
	switch jc.Backend {
	case "memory", "":
		store := jobstore.NewMemoryStore()
		if jc.TTL() > 0 {
			go store.RunJanitor(ctx, jc.TTL(), janitorInterval, func(ctx context.Context, job *model.Job) error {
				return artifact.DeleteJob(ctx, artifacts, job)
			})
		}
		return store, nil
	case "redis":
		return jobstore.NewRedisStore(redisClient, jc.TTL()), nil
	}
	return nil, fmt.Errorf("unknown jobstore backend %q", jc.Backend)
}
