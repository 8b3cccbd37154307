// Package broadcast publishes real-time events to subscribers.  Web
// frontends subscribe to a Redis channel per show time to live-update
// seat maps as tickets are claimed.
package broadcast

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster publishes events over Redis pub/sub.  Delivery is
// fire-and-forget: subscribers that are offline simply miss the event
// and reconcile on their next full fetch.
type RedisBroadcaster struct {
	rdb *redis.Client
}

// NewRedisBroadcaster returns a broadcaster backed by the given Redis
// client.
func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

// Publish sends the event and payload as a JSON envelope to the given
// channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	if b.rdb == nil {
		return nil
	}
	body, err := json.Marshal(map[string]interface{}{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, body).Err()
}
