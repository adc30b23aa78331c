package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache: miss")

type Redis struct {
	C *redis.Client
}

func New(addr string) *Redis {
	return &Redis{
		C: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.C.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.C.Close()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.C.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.C.Set(ctx, key, value, ttl).Err()
}

// Counter returns the integer stored at key, 0 when absent.
func (r *Redis) Counter(ctx context.Context, key string) (int64, error) {
	n, err := r.C.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	return r.C.Incr(ctx, key).Result()
}

// WaitReady pings until the server answers or the deadline passes.
func (r *Redis) WaitReady(ctx context.Context, within, every time.Duration) error {
	deadline := time.Now().Add(within)
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := r.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(every):
		}
	}
}
