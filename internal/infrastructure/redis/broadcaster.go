package redisrepo

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// Broadcaster publishes events to the shared pub/sub channels and hands out
// the pattern subscription each process uses to feed its local hub.
type Broadcaster struct {
	db *redis.Client
}

func NewBroadcaster(db *redis.Client) *Broadcaster {
	return &Broadcaster{db: db}
}

func (b *Broadcaster) Publish(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return wrapStoreErr("publish event", b.db.Publish(ctx, ev.Channel(), data).Err())
}

// SubscribeAll opens one pattern subscription covering every room and thread
// channel. The hub consumes it for the lifetime of the process.
func (b *Broadcaster) SubscribeAll(ctx context.Context) *redis.PubSub {
	return b.db.PSubscribe(ctx, AllChannelPatterns()...)
}
