package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/zaedhealth/identity-service/internal/core/port"
	"github.com/zaedhealth/identity-service/internal/repository"
)

// EphemeralStore implements port.EphemeralStore on Redis. It backs the OTP
// engine: hashed codes with TTL, attempt counters, and rate-limit counters.
type EphemeralStore struct {
	client *red.Client
	prefix string
}

// NewEphemeralStore constructs a store with the provided client and key prefix.
func NewEphemeralStore(client *red.Client, keyPrefix string) *EphemeralStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = "identity"
	}

	return &EphemeralStore{client: client, prefix: prefix}
}

// Get returns the value stored at key, or repository.ErrNotFound.
func (s *EphemeralStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}

	return value, nil
}

// SetWithTTL stores value at key with the supplied expiry.
func (s *EphemeralStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *EphemeralStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// Increment atomically increments the counter at key and returns the new value.
func (s *EphemeralStore) Increment(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Incr(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}

	return count, nil
}

// Expire sets the TTL on an existing key.
func (s *EphemeralStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.key(key), ttl).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}

	return nil
}

// TTL returns the remaining lifetime of key; zero when absent or persistent.
func (s *EphemeralStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}

	return ttl, nil
}

func (s *EphemeralStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

var _ port.EphemeralStore = (*EphemeralStore)(nil)
