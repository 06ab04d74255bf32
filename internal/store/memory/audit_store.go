package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// AuditStore implements domain.AuditStore in memory.
type AuditStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries []domain.AuditEntry
}

// NewAuditStore returns an empty audit log.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    maps.Clone(detail),
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditEntry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		if inWindow(s.entries[i].CreatedAt, opts) {
			out = append(out, s.entries[i])
		}
	}
	return paginate(out, opts), nil
}
