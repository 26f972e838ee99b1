package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore records invalidated tokens until they would have expired
// naturally. It is independent of the primary store.
type RevocationStore interface {
	// Add marks a token as revoked. The ttl must cover the token's remaining
	// validity window. Re-adding an already revoked token is a no-op success.
	Add(ctx context.Context, token string, ttl time.Duration) error
	// Contains reports whether the token has been revoked.
	Contains(ctx context.Context, token string) (bool, error)
}

const revocationKeyPrefix = "revoked:"

// RedisRevocationStore implements RevocationStore on a Redis key-expiry store.
// SET NX with expiry gives per-token exclusivity without extra locking.
type RedisRevocationStore struct {
	client redis.Cmdable
}

var _ RevocationStore = (*RedisRevocationStore)(nil)

func NewRedisRevocationStore(client redis.Cmdable) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func (s *RedisRevocationStore) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		// The token is already past its expiry; nothing to record.
		return nil
	}
	if err := s.client.SetNX(ctx, revocationKeyPrefix+token, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revocation add: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) Contains(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, revocationKeyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("revocation lookup: %w", err)
	}
	return n > 0, nil
}
