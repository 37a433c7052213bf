package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signoff-hq/signoff/internal/config"
)

const pingTimeout = 2 * time.Second

// OpenRedis initializes a redis client from config and validates connectivity
// via PING.
func OpenRedis(ctx context.Context, addr string, cfg config.RedisConfig) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("notify: redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  cfg.DialTimeout.Std(),
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify: redis ping failed: %w", err)
	}
	return rdb, nil
}

// QueueNotifier pushes notifications onto a redis list for a downstream
// delivery worker (mail, chat) to consume.
type QueueNotifier struct {
	client *redis.Client
	queue  string
}

// NewQueueNotifier creates a QueueNotifier publishing to the given queue.
func NewQueueNotifier(client *redis.Client, queue string) *QueueNotifier {
	return &QueueNotifier{client: client, queue: queue}
}

// Notify implements Notifier by pushing the JSON-encoded notification onto
// the queue.
func (q *QueueNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal notification: %w", err)
	}
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("notify: enqueue notification: %w", err)
	}
	return nil
}

// HealthCheck verifies connectivity to the queue backend.
func (q *QueueNotifier) HealthCheck(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
