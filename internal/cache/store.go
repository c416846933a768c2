// Package cache holds short-lived, single-use values such as OAuth state nonces.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key does not exist or has expired.
var ErrMiss = errors.New("cache: miss")

// Store is a key/value store with expiry and atomic read-and-delete.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Take returns the value and removes the key in one step.
	Take(ctx context.Context, key string) (string, error)
	Close() error
}
