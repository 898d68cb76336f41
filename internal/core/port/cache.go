package port

import (
	"context"
	"time"
)

// EphemeralStore exposes the volatile key-value operations the OTP engine
// coordinates through: TTL-bound values, deletion, atomic counters, and
// remaining-TTL reads. Keys are opaque strings composed by the caller.
type EphemeralStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Increment atomically increments the counter at key and returns the new
	// value. A missing key counts from zero.
	Increment(ctx context.Context, key string) (int64, error)
	// Expire sets the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lifetime of key, or zero when the key is
	// absent or carries no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
