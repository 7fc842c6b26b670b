package tokenstore

import (
	"context"
	"time"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)
var _ Batcher = (*RedisStore)(nil)

const defaultRedisTimeout = 2 * time.Second

// RedisStore keeps values under "<prefix>:<key>". The set "<prefix>:keys"
// records every key written so Clear can remove all of them.
type RedisStore struct {
	rdb     redis.Cmdable
	prefix  string
	timeout time.Duration
}

type RedisStoreOption func(*RedisStore)

// WithRedisTimeout bounds each store operation
func WithRedisTimeout(d time.Duration) RedisStoreOption {
	return func(rs *RedisStore) {
		rs.timeout = d
	}
}

func NewRedisStore(rdb redis.Cmdable, prefix string, options ...RedisStoreOption) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("[NewRedisStore] redis client is required")
	}
	if prefix == "" {
		return nil, errors.New("[NewRedisStore] prefix is required")
	}
	rs := &RedisStore{rdb: rdb, prefix: prefix, timeout: defaultRedisTimeout}
	for _, opt := range options {
		opt(rs)
	}
	return rs, nil
}

func (rs *RedisStore) key(k Key) string {
	return rs.prefix + ":" + string(k)
}

func (rs *RedisStore) indexKey() string {
	return rs.prefix + ":keys"
}

func (rs *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rs.timeout)
}

func (rs *RedisStore) Get(key Key) (*string, error) {
	ctx, cancel := rs.ctx()
	defer cancel()
	v, err := rs.rdb.Get(ctx, rs.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[RedisStore.Get] %s", key)
	}
	return &v, nil
}

func (rs *RedisStore) Set(key Key, value string) error {
	return rs.Apply(map[Key]string{key: value}, nil)
}

func (rs *RedisStore) Remove(key Key) error {
	return rs.Apply(nil, []Key{key})
}

func (rs *RedisStore) Apply(set map[Key]string, remove []Key) error {
	ctx, cancel := rs.ctx()
	defer cancel()
	_, err := rs.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range set {
			pipe.Set(ctx, rs.key(k), v, 0)
			pipe.SAdd(ctx, rs.indexKey(), string(k))
		}
		for _, k := range remove {
			pipe.Del(ctx, rs.key(k))
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "[RedisStore.Apply]")
	}
	return nil
}

func (rs *RedisStore) Clear() error {
	ctx, cancel := rs.ctx()
	defer cancel()

	written, err := rs.rdb.SMembers(ctx, rs.indexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrapf(err, "[RedisStore.Clear] read index")
	}

	keys := make([]string, 0, len(written)+len(AllKeys)+1)
	for _, k := range AllKeys {
		keys = append(keys, rs.key(k))
	}
	for _, k := range written {
		keys = append(keys, rs.key(Key(k)))
	}
	keys = append(keys, rs.indexKey())

	if err := rs.rdb.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrapf(err, "[RedisStore.Clear]")
	}
	return nil
}
