// Package redistore is a Redis-backed trust.Store, for deployments
// where trust decisions must survive restarts or be shared across
// gateway instances.
package redistore

import (
	"context"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ethgate-dev/ethgate/trust"
)

// Config for the Redis-backed trust store. Defaults can be loaded via
// envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: TRUST_KEY_PREFIX
	KeyPrefix string `env:"TRUST_KEY_PREFIX,default=ethgate:trust:"`
}

// Store persists trust grants as Redis keys.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ trust.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ethgate:trust:"
	}
	return &Store{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	// Use envdecode; defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) grantKey(origin string) string { return s.keyPrefix + "grant:" + origin }

func (s *Store) Trusted(ctx context.Context, origin string) (bool, error) {
	n, err := s.client.Exists(ctx, s.grantKey(origin)).Result()
	if err != nil {
		return false, fmt.Errorf("trust lookup: %w", err)
	}
	return n == 1, nil
}

func (s *Store) Grant(ctx context.Context, origin string) error {
	if err := s.client.Set(ctx, s.grantKey(origin), "1", 0).Err(); err != nil {
		return fmt.Errorf("trust grant: %w", err)
	}
	return nil
}

func (s *Store) Revoke(ctx context.Context, origin string) error {
	if err := s.client.Del(ctx, s.grantKey(origin)).Err(); err != nil {
		return fmt.Errorf("trust revoke: %w", err)
	}
	return nil
}
