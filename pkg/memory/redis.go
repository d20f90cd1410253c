package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/iln-nexus/iln/pkg/core"
)

// DefaultNamespace prefixes every key written by the nexus
const DefaultNamespace = "iln"

const pingTimeout = 5 * time.Second

// RedisStore keeps JSON-encoded answers under "<namespace>:<key>" so
// several nexus processes can share them.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore dials redisURL and checks the server answers PING.
func NewRedisStore(redisURL, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: redis url %q: %v", core.ErrInvalidConfiguration, redisURL, err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, &core.Error{Op: "memory.Dial", Kind: core.KindTransport, Err: fmt.Errorf("%w: redis %s: %v", core.ErrTransport, opts.Addr, err)}
	}
	return NewRedisStoreFromClient(rdb, namespace), nil
}

// NewRedisStoreFromClient uses an existing client. Close closes it.
func NewRedisStoreFromClient(rdb *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisStore{rdb: rdb, prefix: namespace + ":"}
}

func (s *RedisStore) Get(ctx context.Context, key string) (interface{}, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("key %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var v interface{}
	if json.Unmarshal(raw, &v) != nil {
		// written by something other than Set
		return string(raw), nil
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, s.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the client
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
