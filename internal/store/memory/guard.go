package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// ReplayGuard implements domain.ReplayGuard for a single process.
type ReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewReplayGuard returns an empty guard.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{seen: make(map[string]time.Time), now: time.Now}
}

func (g *ReplayGuard) Remember(_ context.Context, key string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, exp := range g.seen {
		if !now.Before(exp) {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[key]; ok {
		return fmt.Errorf("memory: replay %s: %w", key, domain.ErrReplayed)
	}
	g.seen[key] = now.Add(ttl)
	return nil
}

// LockManager implements domain.LockManager with one channel per key. The ttl
// is ignored: an in-process holder cannot disappear without releasing. A key's
// entry is dropped once no holder or waiter references it.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// NewLockManager returns a lock manager with no held keys.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*lockEntry)}
}

// Acquire blocks until key is free or ctx is done.
func (m *LockManager) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, fmt.Errorf("memory: lock %s: %w", key, domain.ErrLockHeld)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

func (m *LockManager) release(key string, e *lockEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
