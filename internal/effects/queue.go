package effects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/online-consultation-service/internal/consultation"
)

// DefaultQueueKey is the Redis list holding pending effect envelopes.
const DefaultQueueKey = "consultation:effects"

// RedisQueue is a Redis-list-backed effect queue. The API enqueues with
// LPUSH; the worker blocks on BRPOP. One envelope per transition keeps the
// transition's effects ordered.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, env consultation.EffectEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode effect envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue effects: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next envelope. A nil envelope with a
// nil error means the wait timed out and the caller should loop.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*consultation.EffectEnvelope, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue effects: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("dequeue effects: unexpected reply of %d elements", len(res))
	}

	var env consultation.EffectEnvelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("decode effect envelope: %w", err)
	}
	return &env, nil
}
