// internal/handler/websocket/relay.go
package handler

import (
	"context"
	"encoding/json"

	"auction-service/internal/pub"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Relay feeds events published on Redis by any instance into the local hub.
type Relay struct {
	rdb    redis.UniversalClient
	hub    *Hub
	logger *zap.Logger
}

func NewRelay(rdb redis.UniversalClient, hub *Hub, logger *zap.Logger) *Relay {
	return &Relay{rdb: rdb, hub: hub, logger: logger}
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, pub.EventsChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("websocket relay subscribed", zap.String("channel", pub.EventsChannel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env pub.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("dropping malformed event", zap.Error(err))
				continue
			}
			r.hub.Deliver(&env)
		}
	}
}
