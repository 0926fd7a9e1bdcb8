package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("session lock not acquired")
)

// Locker serializes clinical-payload appends on a single consultation:
// concurrent callers append in turn instead of racing the read-modify-write.
type Locker interface {
	WithSessionLock(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisSessionLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionLocker creates a locker keyed per consultation session.
func NewRedisSessionLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSessionLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisSessionLocker) WithSessionLock(ctx context.Context, sessionID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:consultation:%s", sessionID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSessionLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release session lock: %w", err)
	}
	return nil
}
