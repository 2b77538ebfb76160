package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-acquired by another process is left alone.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

const keyPrefix = "lock:"

// RedisLocker serializes across processes with SET NX PX. The TTL bounds
// how long a crashed holder can block others.
type RedisLocker struct {
	client     redis.Cmdable
	ttl        time.Duration
	retryEvery time.Duration
	logger     *slog.Logger
	newToken   func() string
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{
		client:     client,
		ttl:        ttl,
		retryEvery: 25 * time.Millisecond,
		logger:     logger,
		newToken:   uuid.NewString,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := l.newToken()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryEvery):
		}
	}

	return func() {
		// release must happen even if the caller's ctx was cancelled
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()

		res, err := l.client.Eval(releaseCtx, releaseScript, []string{redisKey}, token).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Error("failed to release lock", "key", key, "error", err)
			return
		}
		if res == 0 {
			l.logger.Warn("lock expired before release", "key", key, "ttl", l.ttl)
		}
	}, nil
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}
