package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker on Redis lists: LPUSH to enqueue, BRPOP
// to consume (oldest first), LLEN for the backlog snapshot.
type RedisBroker struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisBroker connects a broker to the given Redis database. Depth and
// enqueue calls are bounded by timeout.
func NewRedisBroker(addr, password string, db int, timeout time.Duration) *RedisBroker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisBroker{client: client, timeout: timeout}
}

func (b *RedisBroker) Enqueue(ctx context.Context, queue string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.client.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

func (b *RedisBroker) Depth(ctx context.Context, queue string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	n, err := b.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth %s: %w", queue, err)
	}
	return int(n), nil
}

func (b *RedisBroker) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error) {
	res, err := b.client.BRPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dequeue %s: %w", queue, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, false, fmt.Errorf("dequeue %s: unexpected reply length %d", queue, len(res))
	}
	return []byte(res[1]), true, nil
}

// Close releases the underlying client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
