package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SettlementStore persists the history of terminated auctions.
type SettlementStore interface {
	Create(ctx context.Context, s Settlement) error
	GetByID(ctx context.Context, id string) (Settlement, error)
	List(ctx context.Context, opts ListOpts) ([]Settlement, error)
	ListByAuthority(ctx context.Context, authority Pubkey, opts ListOpts) ([]Settlement, error)
	ListBefore(ctx context.Context, before time.Time) ([]Settlement, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
