package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

const subscriberBuffer = 64

// SignalBus implements domain.SignalBus in process. Slow subscribers miss
// messages rather than block publishers.
type SignalBus struct {
	mu      sync.Mutex
	subs    map[string]map[chan []byte]struct{}
	streams map[string][]domain.StreamMessage
	seq     map[string]int
	maxLen  int
}

// NewSignalBus returns a bus whose streams keep at most maxLen entries.
func NewSignalBus(maxLen int) *SignalBus {
	if maxLen <= 0 {
		maxLen = 10_000
	}
	return &SignalBus{
		subs:    make(map[string]map[chan []byte]struct{}),
		streams: make(map[string][]domain.StreamMessage),
		seq:     make(map[string]int),
		maxLen:  maxLen,
	}
}

func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that receives payloads until ctx is done.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// StreamAppend assigns IDs of the form "<unix-ms>-<seq>" like Redis streams.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq[stream]++
	id := strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + strconv.Itoa(b.seq[stream])
	entries := append(b.streams[stream], domain.StreamMessage{ID: id, Payload: payload})
	if len(entries) > b.maxLen {
		entries = entries[len(entries)-b.maxLen:]
	}
	b.streams[stream] = entries
	return nil
}

// StreamRead returns up to count entries after lastID. "0" or "" reads from
// the beginning.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.streams[stream]
	start := 0
	if lastID != "" && lastID != "0" {
		for i, e := range entries {
			if e.ID == lastID {
				start = i + 1
				break
			}
		}
	}
	out := entries[start:]
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return append([]domain.StreamMessage(nil), out...), nil
}

// RateLimiter implements domain.RateLimiter with a sliding window per key.
type RateLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewRateLimiter returns an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{hits: make(map[string][]time.Time), now: time.Now}
}

func (l *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)
	for k, ts := range l.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.hits, k)
		}
	}

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		l.hits[key] = kept
		return false, nil
	}
	l.hits[key] = append(kept, now)
	return true, nil
}
