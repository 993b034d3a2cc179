package notify

import (
	"context"
	"encoding/json"

	"github.com/hanfang-health/backend/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisSink publishes fired notifications on a per-user Redis channel that
// connected clients subscribe to.
type RedisSink struct {
	redis  *redis.Client
	prefix string
}

func NewRedisSink(redisClient *redis.Client) *RedisSink {
	return &RedisSink{
		redis:  redisClient,
		prefix: "notify:",
	}
}

func (s *RedisSink) Deliver(ctx context.Context, userID string, entry models.HistoryEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification")
	}
	if err := s.redis.Publish(ctx, s.prefix+userID, payload).Err(); err != nil {
		return errors.Wrap(err, "failed to publish notification")
	}
	return nil
}
