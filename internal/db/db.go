package db

import (
	"context"
	"time"
)

// Store is the storage facade. Consumers depend on the narrow
// sub-interfaces, not on Store itself.
type Store interface {
	Pinger
	KVStore
	HashStore
	ListStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// HashStore provides hash field operations. Writers that own disjoint
// fields of the same hash never conflict.
type HashStore interface {
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
}

// ListStore provides list push/pop used by the job queue.
type ListStore interface {
	LPush(ctx context.Context, key string, value []byte) error
	// BRPop blocks up to timeout for the next element; returns
	// ErrKeyNotFound when the wait times out empty.
	BRPop(ctx context.Context, key string, timeout time.Duration) ([]byte, error)
	LLen(ctx context.Context, key string) (int64, error)
}
