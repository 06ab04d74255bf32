package domain

import (
	"context"
	"time"
)

// AuctionCache keeps recently read auction accounts keyed by seller.
type AuctionCache interface {
	Set(ctx context.Context, seller Pubkey, acct AuctionAccount) error
	Get(ctx context.Context, seller Pubkey) (AuctionAccount, error)
	Invalidate(ctx context.Context, seller Pubkey) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// ReplayGuard remembers request digests for a bounded time. Remember returns
// ErrReplayed when key was already recorded within ttl.
type ReplayGuard interface {
	Remember(ctx context.Context, key string, ttl time.Duration) error
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
