package ledger

import (
	"context"

	"github.com/redis/go-redis/v9"
)

var redisLedgerPrefix string = "parrot/ledger/"
var redisCursorKey string = "parrot/cursors"

// Store backed by one redis SET per kind, and a HASH of cursors. Entries have no expiration.
type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
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
	return &RedisStore{Client: rdb}, nil
}

func (s *RedisStore) Load(ctx context.Context) (*Record, error) {
	rec := NewRecord()
	for _, kind := range AllKinds {
		ids, err := s.Client.SMembers(ctx, redisLedgerPrefix+string(kind)).Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		for _, id := range ids {
			rec.add(kind, id)
		}
	}
	cursors, err := s.Client.HGetAll(ctx, redisCursorKey).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	for acct, cur := range cursors {
		rec.Cursors[acct] = cur
	}
	return rec, nil
}

func (s *RedisStore) Append(ctx context.Context, kind Kind, id string) error {
	return s.Client.SAdd(ctx, redisLedgerPrefix+string(kind), id).Err()
}

func (s *RedisStore) PutCursor(ctx context.Context, account, id string) error {
	return s.Client.HSet(ctx, redisCursorKey, account, id).Err()
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
