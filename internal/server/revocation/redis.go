package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "taskhub:revoked:"

// RedisStore shares revocations between server instances. Keys hold a
// SHA-256 of the credential rather than the bearer string itself and
// expire through Redis TTLs.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}

func (s *RedisStore) Revoke(ctx context.Context, credential string, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisKey(credential), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, credential string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(credential)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n > 0, nil
}
