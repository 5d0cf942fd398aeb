package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the distributed store, shared across service replicas. Keys are
// namespaced by record type so requests, profiles, and token secrets can
// share one database without colliding.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis constructs a redis-backed store. The namespace becomes the key
// prefix; the ttl applies to every record at insertion.
func NewRedis(client *redis.Client, namespace string, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: namespace + ":",
		ttl:    ttl,
	}
}

// Client exposes the underlying connection for liveness probing.
func (r *Redis) Client() *redis.Client {
	return r.client
}

func (r *Redis) Add(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// Take retrieves and removes in one server-side command. GETDEL keeps the
// read and delete atomic so two concurrent pollers on different replicas
// cannot both observe the same record.
func (r *Redis) Take(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	value, err := r.client.GetDel(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel: %w", err)
	}
	return value, nil
}
