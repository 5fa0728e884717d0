package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/go-api-accounts/internal/domain"
)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CodeStore keeps confirmation codes as plain string keys with a TTL.
type CodeStore struct {
	client goredis.UniversalClient
	// nativeGetDel selects GETDEL (Redis >= 6.2). Older servers get MULTI/GET/DEL.
	nativeGetDel bool
}

func NewCodeStore(client goredis.UniversalClient, nativeGetDel bool) *CodeStore {
	return &CodeStore{client: client, nativeGetDel: nativeGetDel}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func (s *CodeStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *CodeStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", err)
	}
	return v, true, nil
}

func (s *CodeStore) GetAndDelete(ctx context.Context, key string) (string, bool, error) {
	if s.nativeGetDel {
		v, err := s.client.GetDel(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		if err != nil {
			return "", false, unavailable("getdel", err)
		}
		return v, true, nil
	}

	var get *goredis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return "", false, unavailable("multi get del", err)
	}
	v, err := get.Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("multi get del", err)
	}
	return v, true, nil
}

func (s *CodeStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

func (s *CodeStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

func (s *CodeStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return unavailable("expire", err)
	}
	return nil
}

func (s *CodeStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, unavailable("compare and delete", err)
	}
	return n == 1, nil
}
