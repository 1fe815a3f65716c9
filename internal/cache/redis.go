package cache

import (
	"context"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps entries in Redis, sharing the cache across replicas.
type RedisStore struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// NewRedisStore connects to Redis and verifies it responds before returning
// a store backed by it.
func NewRedisStore(addr, password string, db int, logger *slog.Logger) (*RedisStore, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisStore{
		client:  client,
		logger:  logger,
		prefix:  "coal:response:",
		timeout: 250 * time.Millisecond,
	}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logRedisError("get", err)
		}
		return nil, false
	}
	return raw, true
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		r.logRedisError("set", err)
	}
}

func (r *RedisStore) Name() string { return "redis" }

// Close releases the underlying Redis connection.
func (r *RedisStore) Close() {
	if r.client != nil {
		_ = r.client.Close()
	}
}

func (r *RedisStore) logRedisError(op string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Error("redis response cache error", "op", op, "error", err)
}
