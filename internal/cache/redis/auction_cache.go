package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

const auctionTTL = 30 * time.Second

// AuctionCache implements domain.AuctionCache. Entries are the JSON account
// keyed by seller:
//
//	auction:{seller} - string, expires after auctionTTL
type AuctionCache struct {
	c   *Client
	ttl time.Duration
}

// NewAuctionCache creates an AuctionCache backed by the given Client.
func NewAuctionCache(c *Client) *AuctionCache {
	return &AuctionCache{c: c, ttl: auctionTTL}
}

func (ac *AuctionCache) key(seller domain.Pubkey) string {
	return ac.c.Key("auction", seller.String())
}

// Set stores acct for seller.
func (ac *AuctionCache) Set(ctx context.Context, seller domain.Pubkey, acct domain.AuctionAccount) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("redis: marshal auction %s: %w", seller, err)
	}
	if err := ac.c.rdb.Set(ctx, ac.key(seller), data, ac.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set auction %s: %w", seller, err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a cache miss.
func (ac *AuctionCache) Get(ctx context.Context, seller domain.Pubkey) (domain.AuctionAccount, error) {
	data, err := ac.c.rdb.Get(ctx, ac.key(seller)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.AuctionAccount{}, domain.ErrNotFound
		}
		return domain.AuctionAccount{}, fmt.Errorf("redis: get auction %s: %w", seller, err)
	}

	var acct domain.AuctionAccount
	if err := json.Unmarshal(data, &acct); err != nil {
		return domain.AuctionAccount{}, fmt.Errorf("redis: unmarshal auction %s: %w", seller, err)
	}
	return acct, nil
}

// Invalidate drops the entry for seller.
func (ac *AuctionCache) Invalidate(ctx context.Context, seller domain.Pubkey) error {
	if err := ac.c.rdb.Del(ctx, ac.key(seller)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate auction %s: %w", seller, err)
	}
	return nil
}

var _ domain.AuctionCache = (*AuctionCache)(nil)
