package services

import (
	"context"
	"sync"
	"time"

	"anniversary_server/apperrors"
	"anniversary_server/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TickLocker serializes ticks of one relationship. TryLock never waits:
// a held lock means another tick is already evaluating that relationship.
type TickLocker interface {
	TryLock(ctx context.Context, relationshipID string) (unlock func(), ok bool, err error)
}

// LocalTickLocker serializes ticks inside one process.
type LocalTickLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalTickLocker() *LocalTickLocker {
	return &LocalTickLocker{held: make(map[string]struct{})}
}

func (l *LocalTickLocker) TryLock(_ context.Context, relationshipID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[relationshipID]; busy {
		return nil, false, nil
	}
	l.held[relationshipID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, relationshipID)
			l.mu.Unlock()
		})
	}, true, nil
}

var releaseTickLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTickLocker serializes ticks across every process sharing the Redis
// instance. The TTL bounds how long a crashed holder can block a relationship.
type RedisTickLocker struct {
	Client redis.UniversalClient
	TTL    time.Duration
	Prefix string
}

func NewRedisTickLocker(client redis.UniversalClient, ttl time.Duration) *RedisTickLocker {
	return &RedisTickLocker{Client: client, TTL: ttl, Prefix: "anniversary:tick:"}
}

func (l *RedisTickLocker) TryLock(ctx context.Context, relationshipID string) (func(), bool, error) {
	key := l.Prefix + relationshipID
	token := uuid.NewString()

	ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
	if err != nil {
		return nil, false, apperrors.Unavailable("tick lock", err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseTickLock.Run(releaseCtx, l.Client, []string{key}, token).Err(); err != nil {
				logger.Get().Warn().Err(err).Str("relationshipId", relationshipID).Msg("⚠️ tick lock release failed, waiting for TTL")
			}
		})
	}, true, nil
}
