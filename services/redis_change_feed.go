package services

import (
	"context"
	"strings"
	"time"

	"anniversary_server/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultChangeChannel = "anniversary:changes"

// RedisChangeFeed extends the local feed across server instances: every
// local publish is mirrored to a Redis channel, and changes published by
// other instances are replayed into the local subscribers.
type RedisChangeFeed struct {
	*LocalChangeFeed
	client  redis.UniversalClient
	channel string
	origin  string
}

func NewRedisChangeFeed(client redis.UniversalClient, channel string) *RedisChangeFeed {
	if channel == "" {
		channel = defaultChangeChannel
	}
	return &RedisChangeFeed{
		LocalChangeFeed: NewLocalChangeFeed(),
		client:          client,
		channel:         channel,
		origin:          uuid.NewString(),
	}
}

func (f *RedisChangeFeed) Publish(ctx context.Context, path string) {
	f.LocalChangeFeed.Publish(ctx, path)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := f.client.Publish(pubCtx, f.channel, f.origin+" "+path).Err(); err != nil {
		logger.Get().Warn().Err(err).Str("path", path).Msg("⚠️ change not mirrored to redis")
	}
}

// Run relays remote changes until ctx is done.
func (f *RedisChangeFeed) Run(ctx context.Context) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	logger.Get().Info().Str("channel", f.channel).Msg("✅ listening for remote changes")

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, path, found := strings.Cut(msg.Payload, " ")
			if !found || origin == f.origin {
				continue
			}
			f.LocalChangeFeed.Publish(ctx, path)
		case <-ctx.Done():
			return nil
		}
	}
}
