package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

func TestKey(t *testing.T) {
	check.Equal(t, "lock:abc", (&Client{}).Key("lock", "abc"))
	check.Equal(t, "dutch:replay:x", (&Client{prefix: "dutch"}).Key("replay", "x"))
}

// integrationClient connects to DUTCH_TEST_REDIS_ADDR or skips. Each test
// gets its own key prefix.
func integrationClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("DUTCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DUTCH_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, KeyPrefix: "test-" + uuid.NewString()})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLockManagerIntegration(t *testing.T) {
	c := integrationClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "seller", 5*time.Second)
	assert.NoError(t, err)

	_, err = lm.TryAcquire(ctx, "seller", 5*time.Second)
	check.True(t, errors.Is(err, domain.ErrLockHeld))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = lm.Acquire(short, "seller", 5*time.Second)
	check.True(t, errors.Is(err, domain.ErrLockHeld))

	unlock()
	unlock()
	again, err := lm.TryAcquire(ctx, "seller", 5*time.Second)
	assert.NoError(t, err)
	again()
}

func TestReplayGuardIntegration(t *testing.T) {
	c := integrationClient(t)
	g := NewReplayGuard(c)
	ctx := context.Background()

	assert.NoError(t, g.Remember(ctx, "digest", time.Minute))
	check.True(t, errors.Is(g.Remember(ctx, "digest", time.Minute), domain.ErrReplayed))
	check.NoError(t, g.Remember(ctx, "other", time.Minute))
}

func TestRateLimiterIntegration(t *testing.T) {
	c := integrationClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	for range 3 {
		ok, err := rl.Allow(ctx, "ip", 3, time.Minute)
		assert.NoError(t, err)
		check.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "ip", 3, time.Minute)
	assert.NoError(t, err)
	check.False(t, ok)
}

func TestAuctionCacheIntegration(t *testing.T) {
	c := integrationClient(t)
	ac := NewAuctionCache(c)
	ctx := context.Background()

	var seller domain.Pubkey
	seller[0] = 1
	_, err := ac.Get(ctx, seller)
	check.True(t, errors.Is(err, domain.ErrNotFound))

	acct := domain.AuctionAccount{Record: domain.AuctionRecord{Authority: seller, Amount: 3}}
	assert.NoError(t, ac.Set(ctx, seller, acct))
	got, err := ac.Get(ctx, seller)
	assert.NoError(t, err)
	check.Equal(t, acct, got)

	assert.NoError(t, ac.Invalidate(ctx, seller))
	_, err = ac.Get(ctx, seller)
	check.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSignalBusStreamIntegration(t *testing.T) {
	c := integrationClient(t)
	sb := NewSignalBus(c)
	ctx := context.Background()

	assert.NoError(t, sb.StreamAppend(ctx, "auction-events", []byte("one")))
	assert.NoError(t, sb.StreamAppend(ctx, "auction-events", []byte("two")))

	msgs, err := sb.StreamRead(ctx, "auction-events", "0", 10)
	assert.NoError(t, err)
	check.Equal(t, 2, len(msgs))
	check.Equal(t, "one", string(msgs[0].Payload))

	rest, err := sb.StreamRead(ctx, "auction-events", msgs[1].ID, 10)
	assert.NoError(t, err)
	check.Equal(t, 0, len(rest))
}
