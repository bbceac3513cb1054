// Package redis provides a Store backed by Redis.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a go-redis client.
type Store struct {
	rdb goredis.UniversalClient
}

// New wraps an existing client.
func New(rdb goredis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Open connects to the Redis server at addr (host:port) using db.
func Open(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("paysim/redis: ping %s: %w", addr, err)
	}
	return New(rdb), nil
}

// Migrate is a no-op for Redis (no schema).
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

func (s *Store) Get(ctx context.Context, key string) (object.Object, error) {
	raw, err := s.rdb.Get(ctx, objectKey(key)).Bytes()
	if isRedisNil(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("paysim/redis: get %s: %w", key, err)
	}
	return object.DecodeKey(key, raw)
}

func (s *Store) Set(ctx context.Context, o object.Object) error {
	raw, err := object.Encode(o)
	if err != nil {
		return err
	}

	key := object.KeyOf(o)
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, objectKey(key), raw, 0)
		pipe.ZAdd(ctx, zKeys, goredis.Z{Score: 0, Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("paysim/redis: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	var del *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, objectKey(key))
		pipe.ZRem(ctx, zKeys, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("paysim/redis: delete %s: %w", key, err)
	}
	if del.Val() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Items(ctx context.Context, prefix string) ([]store.Item, error) {
	lo, hi := lexRange(prefix)
	keys, err := s.rdb.ZRangeByLex(ctx, zKeys, &goredis.ZRangeBy{Min: lo, Max: hi}).Result()
	if err != nil {
		return nil, fmt.Errorf("paysim/redis: scan %q: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	rkeys := make([]string, len(keys))
	for i, k := range keys {
		rkeys[i] = objectKey(k)
	}
	vals, err := s.rdb.MGet(ctx, rkeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("paysim/redis: mget: %w", err)
	}

	items := make([]store.Item, 0, len(keys))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Deleted between the index read and MGET.
			continue
		}
		it, err := store.DecodeItem(keys[i], []byte(raw))
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.rdb.ZRange(ctx, zKeys, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("paysim/redis: clear: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, k := range keys {
			pipe.Del(ctx, objectKey(k))
		}
		pipe.Del(ctx, zKeys)
		return nil
	})
	if err != nil {
		return fmt.Errorf("paysim/redis: clear: %w", err)
	}
	return nil
}
