package pub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// EventsChannel is the Redis pub/sub channel every instance's websocket relay
// subscribes to.
const EventsChannel = "auction_events"

type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
}

func NewRedisPublisher(rdb redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: EventsChannel}
}

func (p *RedisPublisher) Notify(ctx context.Context, recipientID, kind string, payload any) error {
	env, err := NewEnvelope(ChannelNotify, recipientID, "", kind, payload)
	if err != nil {
		return err
	}
	return p.publish(ctx, env)
}

func (p *RedisPublisher) Broadcast(ctx context.Context, topic, kind string, payload any) error {
	env, err := NewEnvelope(ChannelBroadcast, "", topic, kind, payload)
	if err != nil {
		return err
	}
	return p.publish(ctx, env)
}

func (p *RedisPublisher) publish(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
