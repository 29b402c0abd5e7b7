package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	collectionKeyPrefix = "collection:"
	leaseKeyPrefix      = "lease:"
)

// acquireLeaseScript sets the lease when it is free or already ours.
var acquireLeaseScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or current == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisKVStore keeps each collection under its own key with no expiry.
type RedisKVStore struct {
	client *redis.Client
	prefix string
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

// WithPrefix returns a store that namespaces its keys, so that several
// replicas can share one Redis database.
func (s *RedisKVStore) WithPrefix(prefix string) *RedisKVStore {
	return &RedisKVStore{client: s.client, prefix: prefix}
}

func (s *RedisKVStore) Get(ctx context.Context, collection string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(collection)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get", collection, err)
	}
	return data, nil
}

func (s *RedisKVStore) Put(ctx context.Context, collection string, payload []byte) error {
	if err := s.client.Set(ctx, s.key(collection), payload, 0).Err(); err != nil {
		return storeErr("put", collection, err)
	}
	return nil
}

// PutBatch writes every payload inside MULTI/EXEC.
func (s *RedisKVStore) PutBatch(ctx context.Context, payloads map[string][]byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for collection, payload := range payloads {
			pipe.Set(ctx, s.key(collection), payload, 0)
		}
		return nil
	})
	if err != nil {
		return storeErr("put", batchName(payloads), err)
	}
	return nil
}

func (s *RedisKVStore) Delete(ctx context.Context, collection string) error {
	if err := s.client.Del(ctx, s.key(collection)).Err(); err != nil {
		return storeErr("delete", collection, err)
	}
	return nil
}

// AcquireLease relies on key expiry; an abandoned lease frees itself after ttl.
func (s *RedisKVStore) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	acquired, err := acquireLeaseScript.Run(ctx, s.client, []string{s.leaseKey(name)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, storeErr("lease", name, err)
	}
	return acquired == 1, nil
}

func (s *RedisKVStore) ReleaseLease(ctx context.Context, name, owner string) error {
	if err := releaseLeaseScript.Run(ctx, s.client, []string{s.leaseKey(name)}, owner).Err(); err != nil {
		return storeErr("release", name, err)
	}
	return nil
}

func (s *RedisKVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisKVStore) key(collection string) string {
	return s.prefix + collectionKeyPrefix + collection
}

func (s *RedisKVStore) leaseKey(name string) string {
	return s.prefix + leaseKeyPrefix + name
}
