// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"time"
)

// KeyConversationList is the cache key for the encoded conversation
// directory response.
const KeyConversationList = "conversations:list"

// Cache is the port interface for key-value caching of encoded responses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
