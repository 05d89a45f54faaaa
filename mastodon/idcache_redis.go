package mastodon

import (
	"context"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Second-level cache of handle to account ID, shared between bot instances and restarts.
type IDCache interface {
	// returns empty string on a miss
	Get(ctx context.Context, handle string) (string, error)
	Set(ctx context.Context, handle, id string) error
}

type RedisIDCache struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ IDCache = (*RedisIDCache)(nil)

func NewRedisIDCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisIDCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(1_000, ttl),
	})
	return &RedisIDCache{
		Data: data,
		TTL:  ttl,
	}, nil
}

func redisIDCacheKey(handle string) string {
	return "parrot/account-id/" + handle
}

func (s *RedisIDCache) Get(ctx context.Context, handle string) (string, error) {
	var val string
	err := s.Data.Get(ctx, redisIDCacheKey(handle), &val)
	if err == cache.ErrCacheMiss {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisIDCache) Set(ctx context.Context, handle, id string) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisIDCacheKey(handle),
		Value: id,
		TTL:   s.TTL,
	})
}
