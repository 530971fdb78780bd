package ratelimit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const (
	fieldAttempts = "a"
	fieldFirst    = "f"
	fieldBlocked  = "b"

	defaultRedisPrefix     = "lg:rl:"
	defaultRedisRetention  = time.Hour
	defaultRedisMaxRetries = 8
)

// RedisConfig tunes a RedisStore.
type RedisConfig struct {
	// Prefix is prepended to every key. Defaults to "lg:rl:".
	Prefix string
	// HashKeys stores blake2b-256 digests instead of raw keys, so identifiers such as
	// email addresses never appear in Redis key names.
	HashKeys bool
	// Retention is the TTL refreshed on every write. It must cover Window and Block.
	Retention time.Duration
	// MaxRetries bounds optimistic transaction retries under contention.
	MaxRetries int
}

// RedisStore shares ledger entries between processes. Each entry is a hash; Update
// runs under WATCH so concurrent writers on one key serialize.
type RedisStore struct {
	client redis.UniversalClient
	config RedisConfig
}

// NewRedisStore creates a RedisStore over client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultRedisPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRedisRetention
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultRedisMaxRetries
	}
	return &RedisStore{client: client, config: cfg}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	e, err := readEntry(ctx, s.client, s.key(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return e, nil
}

func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := s.key(key)

	txf := func(tx *redis.Tx) error {
		current, err := readEntry(ctx, tx, k)
		if err != nil {
			return err
		}

		next := fn(current)
		if next == current {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, k)
				return nil
			}
			var blocked int64
			if !next.BlockedUntil.IsZero() {
				blocked = next.BlockedUntil.UnixMilli()
			}
			pipe.HSet(ctx, k,
				fieldAttempts, next.Attempts,
				fieldFirst, next.FirstAttemptAt.UnixMilli(),
				fieldBlocked, blocked,
			)
			pipe.PExpire(ctx, k, s.config.Retention)
			return nil
		})
		return err
	}

	for i := 0; i < s.config.MaxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%w: update of %q kept conflicting", ErrStoreUnavailable, k)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) key(key string) string {
	if !s.config.HashKeys {
		return s.config.Prefix + key
	}
	sum := blake2b.Sum256([]byte(key))
	return s.config.Prefix + hex.EncodeToString(sum[:])
}

type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readEntry(ctx context.Context, c hashGetter, key string) (*Entry, error) {
	fields, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	attempts, err := strconv.Atoi(fields[fieldAttempts])
	if err != nil {
		return nil, fmt.Errorf("corrupt ledger entry %q: %w", key, err)
	}
	first, err := strconv.ParseInt(fields[fieldFirst], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt ledger entry %q: %w", key, err)
	}
	blocked, err := strconv.ParseInt(fields[fieldBlocked], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt ledger entry %q: %w", key, err)
	}

	e := &Entry{
		Attempts:       attempts,
		FirstAttemptAt: time.UnixMilli(first),
	}
	if blocked > 0 {
		e.BlockedUntil = time.UnixMilli(blocked)
	}
	return e, nil
}

var _ Store = (*RedisStore)(nil)
