// Package kv holds short-lived values such as pending verification codes.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for missing or expired keys.
var ErrNotFound = errors.New("kv: not found")

// ExpiringStore is a key/value store whose entries vanish after their TTL.
type ExpiringStore interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
