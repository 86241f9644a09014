// Package events carries job snapshots between processes over Redis
// pub/sub, so progress committed by a worker process reaches the websocket
// subscribers connected to an API process.
package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/model"
)

// Channel is the Redis pub/sub channel for job snapshots
const Channel = "storyreel:jobs"

// Sink consumes job snapshots
type Sink interface {
	Publish(ctx context.Context, snap *model.JobSnapshot)
}

// RedisPublisher publishes snapshots on Channel
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(redisClient *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: redisClient}
}

func (p *RedisPublisher) Publish(ctx context.Context, snap *model.JobSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.WithError(err).Error("Failed to marshal job snapshot")
		return
	}
	if err := p.redis.Publish(ctx, Channel, data).Err(); err != nil {
		log.WithField("job_id", snap.JobID).WithError(err).Warn("Failed to publish job snapshot")
	}
}

// Relay forwards every snapshot published on Channel to sink until ctx is
// done. The subscription is confirmed before Relay returns.
func Relay(ctx context.Context, redisClient *redis.Client, sink Sink) error {
	sub := redisClient.Subscribe(ctx, Channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var snap model.JobSnapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					log.WithError(err).Warn("Ignoring malformed job snapshot")
					continue
				}
				sink.Publish(ctx, &snap)
			}
		}
	}()
	return nil
}
