package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/artifact"
	"github.com/storyreel/api/internal/catalog"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/jobstore"
)

func TestNewArtifactStore(t *testing.T) {
	mem, err := newArtifactStore(config.StorageConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", mem.Name())

	disk, err := newArtifactStore(config.StorageConfig{Backend: "disk", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "disk", disk.Name())

	_, err = newArtifactStore(config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)

	_, err = newArtifactStore(config.StorageConfig{Backend: "tape"})
	assert.Error(t, err)
}

func TestNewJobStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer rdb.Close()

	store, err := newJobStore(ctx, config.JobStoreConfig{Backend: "memory", TTLHours: 1}, rdb, artifact.NewMemoryStore())
	require.NoError(t, err)
	assert.IsType(t, &jobstore.MemoryStore{}, store)

	store, err = newJobStore(ctx, config.JobStoreConfig{Backend: "redis", TTLHours: 1}, rdb, artifact.NewMemoryStore())
	require.NoError(t, err)
	assert.IsType(t, &jobstore.RedisStore{}, store)

	_, err = newJobStore(ctx, config.JobStoreConfig{Backend: "sqlite"}, rdb, artifact.NewMemoryStore())
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetFormatter(&log.TextFormatter{})

	setupLogging(config.ServerConfig{LogLevel: "debug", LogFormat: "json"})
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	setupLogging(config.ServerConfig{LogLevel: "loud"})
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestPrintStories(t *testing.T) {
	var buf bytes.Buffer
	printStories(&buf, catalog.Default().List())
	assert.Contains(t, buf.String(), "creation")
	assert.Contains(t, buf.String(), "TITLE")
}
