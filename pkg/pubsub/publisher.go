package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher fans setlist events out over Redis pub/sub, one logical channel
// per show. Delivery is at-least-once to currently-connected subscribers;
// there is no replay.
type Publisher struct {
	redis *redis.Client
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{redis: redisClient}
}

func (p *Publisher) PublishSetlistEvent(ctx context.Context, event *SetlistEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal setlist event: %w", err)
	}

	channel := ShowChannel(event.ShowID)
	if err := p.redis.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}
