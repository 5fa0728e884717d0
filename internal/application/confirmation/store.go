package confirmation

import (
	"context"
	"time"
)

// CodeStore is a key-value store with per-key expiry. Implementations report
// an unreachable backend as domain.ErrStoreUnavailable.
type CodeStore interface {
	// Set replaces the value and TTL of key.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	// GetAndDelete returns the value and removes the key in one step.
	GetAndDelete(ctx context.Context, key string) (string, bool, error)
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Expire resets the TTL of an existing key. Used by tests and maintenance only.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// ConditionalDeleter is implemented by stores that can delete a key only when
// it still holds an expected value, as a single atomic step.
type ConditionalDeleter interface {
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}
