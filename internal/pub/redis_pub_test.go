package pub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherEnvelope(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, EventsChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPublisher(rdb)
	require.NoError(t, p.Broadcast(ctx, "auction_a1", "new_bid", map[string]string{"bid_id": "b1"}))

	select {
	case msg := <-sub.Channel():
		var env Envelope
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
		assert.Equal(t, ChannelBroadcast, env.Channel)
		assert.Equal(t, "auction_a1", env.Topic)
		assert.Equal(t, "new_bid", env.Kind)
		assert.JSONEq(t, `{"bid_id":"b1"}`, string(env.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}
