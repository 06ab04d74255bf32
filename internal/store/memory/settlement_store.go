package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// SettlementStore implements domain.SettlementStore in memory.
type SettlementStore struct {
	mu   sync.RWMutex
	rows []domain.Settlement
}

// NewSettlementStore returns an empty store.
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{}
}

func (s *SettlementStore) Create(_ context.Context, st domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.ID == st.ID {
			return fmt.Errorf("memory: settlement %s: %w", st.ID, domain.ErrAlreadyExists)
		}
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, st)
	return nil
}

func (s *SettlementStore) GetByID(_ context.Context, id string) (domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Settlement{}, fmt.Errorf("memory: settlement %s: %w", id, domain.ErrNotFound)
}

func (s *SettlementStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	return s.filter(opts, func(domain.Settlement) bool { return true }), nil
}

func (s *SettlementStore) ListByAuthority(_ context.Context, authority domain.Pubkey, opts domain.ListOpts) ([]domain.Settlement, error) {
	return s.filter(opts, func(r domain.Settlement) bool { return r.Authority == authority }), nil
}

func (s *SettlementStore) ListBefore(_ context.Context, before time.Time) ([]domain.Settlement, error) {
	return s.filter(domain.ListOpts{}, func(r domain.Settlement) bool { return r.CreatedAt.Before(before) }), nil
}

func (s *SettlementStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.rows)
	s.rows = slices.DeleteFunc(s.rows, func(r domain.Settlement) bool { return r.CreatedAt.Before(before) })
	return int64(n - len(s.rows)), nil
}

// filter returns matching rows newest first.
func (s *SettlementStore) filter(opts domain.ListOpts, keep func(domain.Settlement) bool) []domain.Settlement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Settlement, 0, len(s.rows))
	for i := len(s.rows) - 1; i >= 0; i-- {
		r := s.rows[i]
		if !keep(r) || !inWindow(r.CreatedAt, opts) {
			continue
		}
		out = append(out, r)
	}
	return paginate(out, opts)
}

func inWindow(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && t.After(*opts.Until) {
		return false
	}
	return true
}
