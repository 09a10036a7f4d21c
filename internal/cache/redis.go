package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// entityIndexTTL outlives any cache entry so an entity set never expires before its members.
const entityIndexTTL = 24 * time.Hour

// RedisConfig selects the Redis instance backing a shared cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return rdb, nil
}

// RedisStore is a Store shared by every replica. Entity indexes are Redis sets.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store that namespaces every key with prefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fleetac"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) valueKey(key string) string {
	return s.prefix + ":v:" + key
}

func (s *RedisStore) entityKey(id string) string {
	return s.prefix + ":e:" + id
}

func (s *RedisStore) genKey(id string) string {
	return s.prefix + ":g:" + id
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, entityIDs ...string) error {
	vk := s.valueKey(key)
	if ttl <= 0 {
		return s.rdb.Del(ctx, vk).Err()
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		s.write(ctx, p, vk, value, ttl, entityIDs)
		return nil
	})
	return err
}

func (s *RedisStore) write(ctx context.Context, p redis.Pipeliner, vk string, value []byte, ttl time.Duration, entityIDs []string) {
	p.Set(ctx, vk, value, ttl)
	for _, id := range entityIDs {
		ek := s.entityKey(id)
		p.SAdd(ctx, ek, vk)
		p.Expire(ctx, ek, entityIndexTTL)
	}
}

// Generations implements Store. An entity never invalidated is at generation 0.
func (s *RedisStore) Generations(ctx context.Context, entityIDs ...string) ([]uint64, error) {
	return s.generations(ctx, s.rdb, entityIDs)
}

type mgetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (s *RedisStore) generations(ctx context.Context, c mgetter, entityIDs []string) ([]uint64, error) {
	out := make([]uint64, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(entityIDs))
	for i, id := range entityIDs {
		keys[i] = s.genKey(id)
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cache: generation %s: %w", keys[i], err)
		}
		out[i] = n
	}
	return out, nil
}

// SetIfCurrent implements Store. The generation keys are watched so an Invalidate
// between the comparison and the write aborts the transaction.
func (s *RedisStore) SetIfCurrent(ctx context.Context, key string, value []byte, ttl time.Duration, gens []uint64, entityIDs ...string) (bool, error) {
	if len(gens) != len(entityIDs) {
		return false, nil
	}
	vk := s.valueKey(key)
	if ttl <= 0 {
		return false, s.rdb.Del(ctx, vk).Err()
	}
	watched := make([]string, len(entityIDs))
	for i, id := range entityIDs {
		watched[i] = s.genKey(id)
	}
	stored := false
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.generations(ctx, tx, entityIDs)
		if err != nil {
			return err
		}
		for i := range current {
			if current[i] != gens[i] {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			s.write(ctx, p, vk, value, ttl, entityIDs)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.valueKey(key)).Err()
}

// Invalidate implements Store.
func (s *RedisStore) Invalidate(ctx context.Context, entityID string) error {
	ek := s.entityKey(entityID)
	members, err := s.rdb.SMembers(ctx, ek).Result()
	if err != nil {
		return err
	}
	keys := append(members, ek)
	gk := s.genKey(entityID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.Incr(ctx, gk)
		p.Expire(ctx, gk, entityIndexTTL)
		return nil
	})
	return err
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
