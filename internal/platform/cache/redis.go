package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Options selects the Redis instance shared by the warehouse cache and the job queue.
type Options struct {
	Addr string
	DB   int
}

func (o Options) client() *redis.Options {
	return &redis.Options{Addr: o.Addr, DB: o.DB, DialTimeout: pingTimeout}
}

// Queue returns the connection settings for asynq clients, servers and inspectors.
func (o Options) Queue() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: o.Addr, DB: o.DB}
}

// New creates a Redis client and pings it. On ping failure the client is
// returned together with the error; go-redis reconnects lazily, so callers
// that can run degraded may keep using it.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(opts.client())

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}
