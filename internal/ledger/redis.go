package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds connection settings for a Redis-backed ledger.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisClient parses cfg.URL, applies the pool overrides and verifies the
// connection with PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisLedger stores each ledger key as a plain Redis string.
type RedisLedger struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLedger creates a RedisLedger backed by client.
func NewRedisLedger(client *redis.Client, logger *zap.Logger) *RedisLedger {
	return &RedisLedger{client: client, logger: logger}
}

// Get implements Ledger.
func (l *RedisLedger) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := l.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	return v, nil
}

// Set implements Ledger.
func (l *RedisLedger) Set(ctx context.Context, key string, value []byte) error {
	if err := l.client.Set(ctx, key, value, 0).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

// CompareAndSet implements ConditionalSetter with WATCH/MULTI/EXEC.
func (l *RedisLedger) CompareAndSet(ctx context.Context, key string, prev, next []byte) (bool, error) {
	swapped := false
	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}

		if prev == nil && exists {
			return nil
		}
		if prev != nil && (!exists || string(cur) != string(prev)) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		l.logger.Debug("redis cas lost race", zap.String("key", key))
		return false, nil
	}
	if err != nil {
		return false, unavailable("cas", key, err)
	}
	return swapped, nil
}

// Keys implements KeyScanner using SCAN so large keyspaces do not block Redis.
func (l *RedisLedger) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	seen := make(map[string]struct{})
	iter := l.client.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		// SCAN may return a key more than once.
		k := iter.Val()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("keys", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping implements Pinger.
func (l *RedisLedger) Ping(ctx context.Context) error {
	return unavailable("ping", "", l.client.Ping(ctx).Err())
}
