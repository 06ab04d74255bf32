// Package memory implements the ledger and history stores in process. It
// backs local mode and the test suites.
package memory

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

type state struct {
	auctions map[domain.Pubkey]domain.AuctionAccount
	mints    map[domain.Pubkey]domain.Mint
	tokens   map[domain.Pubkey]domain.TokenAccount
	lamports map[domain.Pubkey]uint64
}

func (s *state) clone() *state {
	return &state{
		auctions: maps.Clone(s.auctions),
		mints:    maps.Clone(s.mints),
		tokens:   maps.Clone(s.tokens),
		lamports: maps.Clone(s.lamports),
	}
}

// Ledger is a domain.Ledger held in memory. Transactions run one at a time
// against a private copy of the state that replaces the live state only when
// the callback returns nil.
type Ledger struct {
	mu    sync.Mutex
	state *state
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{state: &state{
		auctions: make(map[domain.Pubkey]domain.AuctionAccount),
		mints:    make(map[domain.Pubkey]domain.Mint),
		tokens:   make(map[domain.Pubkey]domain.TokenAccount),
		lamports: make(map[domain.Pubkey]uint64),
	}}
}

// Atomically implements domain.Ledger.
func (l *Ledger) Atomically(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := &ledgerTx{s: l.state.clone()}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	l.state = staged.s
	return nil
}

// ledgerTx operates on a staged copy. It is only valid inside Atomically.
type ledgerTx struct {
	s *state
}

var _ domain.LedgerTx = (*ledgerTx)(nil)

func (t *ledgerTx) Auction(_ context.Context, addr domain.Pubkey) (domain.AuctionAccount, error) {
	a, ok := t.s.auctions[addr]
	if !ok {
		return domain.AuctionAccount{}, fmt.Errorf("memory: auction %s: %w", addr, domain.ErrNotFound)
	}
	return a, nil
}

func (t *ledgerTx) CreateAuction(_ context.Context, acct domain.AuctionAccount) error {
	if _, ok := t.s.auctions[acct.Address]; ok {
		return fmt.Errorf("memory: auction %s: %w", acct.Address, domain.ErrAlreadyExists)
	}
	if err := acct.Record.Validate(); err != nil {
		return fmt.Errorf("memory: auction %s: %w", acct.Address, err)
	}
	t.s.auctions[acct.Address] = acct
	return nil
}

func (t *ledgerTx) DeleteAuction(_ context.Context, addr domain.Pubkey) error {
	if _, ok := t.s.auctions[addr]; !ok {
		return fmt.Errorf("memory: auction %s: %w", addr, domain.ErrNotFound)
	}
	delete(t.s.auctions, addr)
	return nil
}

func (t *ledgerTx) ListAuctions(_ context.Context, opts domain.ListOpts) ([]domain.AuctionAccount, error) {
	out := slices.Collect(maps.Values(t.s.auctions))
	slices.SortFunc(out, func(a, b domain.AuctionAccount) int {
		if c := cmp.Compare(a.Record.StartingTime, b.Record.StartingTime); c != 0 {
			return c
		}
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	return paginate(out, opts), nil
}

func (t *ledgerTx) Mint(_ context.Context, addr domain.Pubkey) (domain.Mint, error) {
	m, ok := t.s.mints[addr]
	if !ok {
		return domain.Mint{}, fmt.Errorf("memory: mint %s: %w", addr, domain.ErrNotFound)
	}
	return m, nil
}

func (t *ledgerTx) CreateMint(_ context.Context, m domain.Mint) error {
	if _, ok := t.s.mints[m.Address]; ok {
		return fmt.Errorf("memory: mint %s: %w", m.Address, domain.ErrAlreadyExists)
	}
	t.s.mints[m.Address] = m
	return nil
}

func (t *ledgerTx) MintTo(_ context.Context, mint, dest domain.Pubkey, amount uint64) error {
	m, ok := t.s.mints[mint]
	if !ok {
		return fmt.Errorf("memory: mint %s: %w", mint, domain.ErrNotFound)
	}
	acct, ok := t.s.tokens[dest]
	if !ok {
		return fmt.Errorf("memory: token account %s: %w", dest, domain.ErrNotFound)
	}
	if acct.Mint != mint {
		return fmt.Errorf("memory: mint to %s: %w", dest, domain.ErrMintMismatch)
	}
	if m.Supply+amount < m.Supply {
		return fmt.Errorf("memory: mint %s supply overflow: %w", mint, domain.ErrInvalidAmount)
	}
	m.Supply += amount
	acct.Amount += amount
	t.s.mints[mint] = m
	t.s.tokens[dest] = acct
	return nil
}

func (t *ledgerTx) TokenAccount(_ context.Context, addr domain.Pubkey) (domain.TokenAccount, error) {
	a, ok := t.s.tokens[addr]
	if !ok {
		return domain.TokenAccount{}, fmt.Errorf("memory: token account %s: %w", addr, domain.ErrNotFound)
	}
	return a, nil
}

func (t *ledgerTx) CreateTokenAccount(_ context.Context, acct domain.TokenAccount) error {
	if _, ok := t.s.tokens[acct.Address]; ok {
		return fmt.Errorf("memory: token account %s: %w", acct.Address, domain.ErrAlreadyExists)
	}
	if _, ok := t.s.mints[acct.Mint]; !ok {
		return fmt.Errorf("memory: token account %s: mint %s: %w", acct.Address, acct.Mint, domain.ErrNotFound)
	}
	t.s.tokens[acct.Address] = acct
	return nil
}

func (t *ledgerTx) CloseTokenAccount(_ context.Context, addr domain.Pubkey) (domain.TokenAccount, error) {
	a, ok := t.s.tokens[addr]
	if !ok {
		return domain.TokenAccount{}, fmt.Errorf("memory: token account %s: %w", addr, domain.ErrNotFound)
	}
	if a.Amount != 0 {
		return domain.TokenAccount{}, fmt.Errorf("memory: close %s with %d tokens: %w", addr, a.Amount, domain.ErrInvalidAccountData)
	}
	delete(t.s.tokens, addr)
	return a, nil
}

func (t *ledgerTx) TransferTokens(_ context.Context, from, to domain.Pubkey, amount uint64) error {
	src, ok := t.s.tokens[from]
	if !ok {
		return fmt.Errorf("memory: token account %s: %w", from, domain.ErrNotFound)
	}
	dst, ok := t.s.tokens[to]
	if !ok {
		return fmt.Errorf("memory: token account %s: %w", to, domain.ErrNotFound)
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("memory: transfer %s -> %s: %w", from, to, domain.ErrMintMismatch)
	}
	if src.Amount < amount {
		return fmt.Errorf("memory: transfer from %s: %w", from, domain.ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}
	src.Amount -= amount
	dst.Amount += amount
	t.s.tokens[from] = src
	t.s.tokens[to] = dst
	return nil
}

func (t *ledgerTx) SystemAccount(_ context.Context, addr domain.Pubkey) (domain.SystemAccount, error) {
	return domain.SystemAccount{Address: addr, Lamports: t.s.lamports[addr]}, nil
}

func (t *ledgerTx) Credit(_ context.Context, addr domain.Pubkey, lamports uint64) error {
	bal := t.s.lamports[addr]
	if bal+lamports < bal {
		return fmt.Errorf("memory: credit %s overflows: %w", addr, domain.ErrInvalidAmount)
	}
	t.s.lamports[addr] = bal + lamports
	return nil
}

func (t *ledgerTx) Debit(_ context.Context, addr domain.Pubkey, lamports uint64) error {
	bal := t.s.lamports[addr]
	if bal < lamports {
		return fmt.Errorf("memory: debit %s: %w", addr, domain.ErrInsufficientFunds)
	}
	if bal == lamports {
		delete(t.s.lamports, addr)
		return nil
	}
	t.s.lamports[addr] = bal - lamports
	return nil
}

func (t *ledgerTx) TransferLamports(ctx context.Context, from, to domain.Pubkey, lamports uint64) error {
	if err := t.Debit(ctx, from, lamports); err != nil {
		return err
	}
	return t.Credit(ctx, to, lamports)
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
