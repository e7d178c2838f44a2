package pubsub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventHandler receives every decoded setlist event, in per-channel publish
// order.
type EventHandler func(event *SetlistEvent)

// Subscriber listens on every show channel and dispatches decoded events to
// a handler. The channel is a delta stream: after any disconnect the
// subscriber reconnects on its own, but consumers are expected to re-fetch
// the ranked list to resynchronize, since missed events are not replayed.
type Subscriber struct {
	redis             *redis.Client
	handler           EventHandler
	reconnectInterval time.Duration
}

func NewSubscriber(redisClient *redis.Client, handler EventHandler) *Subscriber {
	return &Subscriber{
		redis:             redisClient,
		handler:           handler,
		reconnectInterval: 3 * time.Second,
	}
}

// Run blocks until ctx is cancelled, reconnecting on any subscription error.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		pubsub := s.redis.PSubscribe(ctx, ShowChannelPattern)
		s.consume(ctx, pubsub)
		if err := pubsub.Close(); err != nil {
			log.Printf("Error closing pubsub: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectInterval):
			log.Printf("Setlist subscriber reconnecting")
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event SetlistEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("Failed to unmarshal setlist event on %s: %v", msg.Channel, err)
				continue
			}
			s.handler(&event)
		}
	}
}
