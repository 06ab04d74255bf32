package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// ReplayGuard implements domain.ReplayGuard with SET NX: the first writer of a
// request digest wins, later writers see domain.ErrReplayed until the key
// expires.
type ReplayGuard struct {
	c *Client
}

// NewReplayGuard creates a ReplayGuard backed by the given Client.
func NewReplayGuard(c *Client) *ReplayGuard {
	return &ReplayGuard{c: c}
}

// Remember records key for ttl.
func (g *ReplayGuard) Remember(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := g.c.rdb.SetNX(ctx, g.c.Key("replay", key), time.Now().Unix(), ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: replay guard %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("redis: replay guard %s: %w", key, domain.ErrReplayed)
	}
	return nil
}

var _ domain.ReplayGuard = (*ReplayGuard)(nil)
