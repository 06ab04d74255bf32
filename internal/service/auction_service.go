// Package service runs auction instructions end to end: request admission,
// per-auction locking, the controller inside one ledger transaction, and the
// receipts, events, audit rows and notifications that follow a commit.
package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dutchescrow/internal/auction"
	"github.com/alanyoungcy/dutchescrow/internal/crypto"
	"github.com/alanyoungcy/dutchescrow/internal/domain"
	"github.com/alanyoungcy/dutchescrow/internal/notify"
	"github.com/alanyoungcy/dutchescrow/internal/store/memory"
)

// Bus names for auction events.
const (
	EventChannel = "auctions"
	EventStream  = "auction-events"
)

// ReceiptSigner attests settlements with the node key.
type ReceiptSigner interface {
	Identity() domain.Pubkey
	Sign(digest []byte) (string, error)
}

// AuctionConfig tunes request admission and locking.
type AuctionConfig struct {
	// MaxSkew bounds |now - IssuedAt| for a signed request.
	MaxSkew time.Duration
	// ReplayTTL is how long a request digest is remembered.
	ReplayTTL time.Duration
	// LockTTL is the lease on the per-auction lock.
	LockTTL time.Duration
	// LockWait caps how long a request queues for the lock.
	LockWait time.Duration
}

// DefaultAuctionConfig returns production defaults.
func DefaultAuctionConfig() AuctionConfig {
	return AuctionConfig{
		MaxSkew:   2 * time.Minute,
		ReplayTTL: 10 * time.Minute,
		LockTTL:   10 * time.Second,
		LockWait:  5 * time.Second,
	}
}

// Outcome is what a committed instruction produced.
type Outcome struct {
	Auction    domain.AuctionAccount `json:"auction"`
	Escrow     domain.Pubkey         `json:"escrow"`
	Settlement *domain.Settlement    `json:"settlement,omitempty"`
}

// AuctionView is a live auction together with its derived addresses.
type AuctionView struct {
	Account   domain.AuctionAccount `json:"account"`
	Addresses auction.Addresses     `json:"addresses"`
}

// AuctionService is the entry point for signed auction instructions and
// auction queries.
type AuctionService struct {
	ctrl        *auction.Controller
	ledger      domain.Ledger
	settlements domain.SettlementStore
	audit       domain.AuditStore
	signer      ReceiptSigner
	clock       domain.Clock
	locks       domain.LockManager
	replay      domain.ReplayGuard
	cache       domain.AuctionCache
	bus         domain.SignalBus
	notifier    *notify.Notifier
	cfg         AuctionConfig
	logger      *slog.Logger
}

// NewAuctionService creates an AuctionService. Locking and replay protection
// default to in-process implementations; cache, bus and notifier are off
// until attached.
func NewAuctionService(
	ctrl *auction.Controller,
	ledger domain.Ledger,
	settlements domain.SettlementStore,
	audit domain.AuditStore,
	signer ReceiptSigner,
	clock domain.Clock,
	cfg AuctionConfig,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		ctrl:        ctrl,
		ledger:      ledger,
		settlements: settlements,
		audit:       audit,
		signer:      signer,
		clock:       clock,
		locks:       memory.NewLockManager(),
		replay:      memory.NewReplayGuard(),
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "auction_service")),
	}
}

// WithLocks replaces the in-process lock manager, e.g. with Redis so several
// nodes share one ledger.
func (s *AuctionService) WithLocks(l domain.LockManager) *AuctionService {
	s.locks = l
	return s
}

// WithReplayGuard replaces the in-process replay guard.
func (s *AuctionService) WithReplayGuard(g domain.ReplayGuard) *AuctionService {
	s.replay = g
	return s
}

// WithCache enables the read-through auction cache.
func (s *AuctionService) WithCache(c domain.AuctionCache) *AuctionService {
	s.cache = c
	return s
}

// WithBus enables event publishing.
func (s *AuctionService) WithBus(b domain.SignalBus) *AuctionService {
	s.bus = b
	return s
}

// WithNotifier enables operator notifications.
func (s *AuctionService) WithNotifier(n *notify.Notifier) *AuctionService {
	s.notifier = n
	return s
}

// Controller exposes the controller for address derivation.
func (s *AuctionService) Controller() *auction.Controller {
	return s.ctrl
}

// Initialize executes a signed initialize instruction.
func (s *AuctionService) Initialize(ctx context.Context, req domain.SignedInstruction) (Outcome, error) {
	ins := req.Instruction
	if ins.Kind != domain.InstructionInitialize || ins.Params == nil {
		return Outcome{}, fmt.Errorf("service: initialize: %w: expected initialize with params", domain.ErrInvalidArgument)
	}

	var res auction.Result
	now, err := s.execute(ctx, req, func(ctx context.Context, tx domain.LedgerTx, inv auction.Invocation) error {
		var err error
		res, err = s.ctrl.Initialize(ctx, tx, inv, *ins.Params, ins.Accounts)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	rec := res.Account.Record
	s.afterCommit(ctx, rec.Authority, domain.AuctionEvent{
		Type:          domain.EventInitialized,
		Auction:       res.Account.Address,
		Authority:     rec.Authority,
		Mint:          res.Mint,
		Amount:        rec.Amount,
		StartingPrice: rec.StartingPrice,
		StartingTime:  rec.StartingTime,
		EndingTime:    rec.EndingTime,
		At:            now,
	})
	s.logger.InfoContext(ctx, "auction initialized",
		slog.String("auction", res.Account.Address.String()),
		slog.String("seller", rec.Authority.String()),
		slog.Uint64("amount", rec.Amount),
		slog.Uint64("start_price", uint64(rec.StartingPrice)),
	)
	return Outcome{Auction: res.Account, Escrow: res.Escrow}, nil
}

// Bid executes a signed bid instruction.
func (s *AuctionService) Bid(ctx context.Context, req domain.SignedInstruction) (Outcome, error) {
	if req.Instruction.Kind != domain.InstructionBid {
		return Outcome{}, fmt.Errorf("service: bid: %w: expected bid", domain.ErrInvalidArgument)
	}
	return s.terminate(ctx, req, domain.SettlementSettled, s.ctrl.Bid)
}

// Close executes a signed close instruction.
func (s *AuctionService) Close(ctx context.Context, req domain.SignedInstruction) (Outcome, error) {
	if req.Instruction.Kind != domain.InstructionClose {
		return Outcome{}, fmt.Errorf("service: close: %w: expected close", domain.ErrInvalidArgument)
	}
	return s.terminate(ctx, req, domain.SettlementReclaimed, s.ctrl.Close)
}

type terminal func(ctx context.Context, tx domain.LedgerTx, inv auction.Invocation, accts domain.AccountMetas) (auction.Result, error)

func (s *AuctionService) terminate(ctx context.Context, req domain.SignedInstruction, kind domain.SettlementKind, op terminal) (Outcome, error) {
	var res auction.Result
	now, err := s.execute(ctx, req, func(ctx context.Context, tx domain.LedgerTx, inv auction.Invocation) error {
		var err error
		res, err = op(ctx, tx, inv, req.Instruction.Accounts)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	rec := res.Account.Record
	st := domain.Settlement{
		ID:            uuid.NewString(),
		Kind:          kind,
		Auction:       res.Account.Address,
		Authority:     rec.Authority,
		Buyer:         res.Buyer,
		Mint:          res.Mint,
		Amount:        rec.Amount,
		Price:         res.Price,
		StartingPrice: rec.StartingPrice,
		StartingTime:  rec.StartingTime,
		EndingTime:    rec.EndingTime,
		SettledAt:     now,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.sign(&st); err != nil {
		s.logger.ErrorContext(ctx, "receipt signing failed", slog.String("settlement", st.ID), slog.String("error", err.Error()))
	}
	if err := s.settlements.Create(ctx, st); err != nil {
		s.logger.ErrorContext(ctx, "settlement record failed", slog.String("settlement", st.ID), slog.String("error", err.Error()))
	}

	evType := domain.EventSettled
	if kind == domain.SettlementReclaimed {
		evType = domain.EventReclaimed
	}
	s.afterCommit(ctx, rec.Authority, domain.AuctionEvent{
		Type:      evType,
		Auction:   res.Account.Address,
		Authority: rec.Authority,
		Buyer:     res.Buyer,
		Mint:      res.Mint,
		Amount:    rec.Amount,
		Price:     res.Price,
		At:        now,
	})
	s.logger.InfoContext(ctx, "auction terminated",
		slog.String("kind", string(kind)),
		slog.String("auction", res.Account.Address.String()),
		slog.Uint64("price", res.Price),
		slog.Uint64("refunded", res.Refunded),
	)
	return Outcome{Auction: res.Account, Escrow: res.Escrow, Settlement: &st}, nil
}

// execute admits req, serializes on the auction address and runs fn in one
// ledger transaction. It returns the ledger time the instruction ran at.
func (s *AuctionService) execute(ctx context.Context, req domain.SignedInstruction, fn func(ctx context.Context, tx domain.LedgerTx, inv auction.Invocation) error) (int64, error) {
	signers, err := s.admit(ctx, req)
	if err != nil {
		return 0, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
	defer cancel()
	unlock, err := s.locks.Acquire(lockCtx, "auction:"+req.Instruction.Accounts.AuctionAccount.String(), s.cfg.LockTTL)
	if err != nil {
		return 0, fmt.Errorf("service: %s: %w", req.Instruction.Kind, err)
	}
	defer unlock()

	now := s.clock.Now()
	inv := auction.Invocation{Signers: signers, Now: now}
	err = s.ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		return fn(ctx, tx, inv)
	})
	if err != nil {
		s.logger.InfoContext(ctx, "instruction rejected",
			slog.String("kind", string(req.Instruction.Kind)),
			slog.String("auction", req.Instruction.Accounts.AuctionAccount.String()),
			slog.Bool("domain_error", domain.IsDomainError(err)),
			slog.String("error", err.Error()),
		)
		return 0, err
	}
	return now, nil
}

// admit checks freshness, recovers the signer set and burns the request
// digest so it cannot run twice.
func (s *AuctionService) admit(ctx context.Context, req domain.SignedInstruction) (domain.SignerSet, error) {
	ins := req.Instruction
	if ins.Nonce == "" {
		return nil, fmt.Errorf("service: %w: nonce is required", domain.ErrInvalidArgument)
	}
	if len(req.Signatures) == 0 {
		return nil, fmt.Errorf("service: %w", domain.ErrMissingSignature)
	}

	skew := time.Duration(s.clock.Now()-ins.IssuedAt) * time.Second
	if skew > s.cfg.MaxSkew || -skew > s.cfg.MaxSkew {
		return nil, fmt.Errorf("service: issued_at %d: %w", ins.IssuedAt, domain.ErrStaleRequest)
	}

	digest, err := crypto.InstructionDigest(ins)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	signers, err := crypto.VerifySigners(ins, req.Signatures)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if err := s.replay.Remember(ctx, hex.EncodeToString(digest), s.cfg.ReplayTTL); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return signers, nil
}

// afterCommit fans out a committed transition. Failures here are logged and
// never undo the commit.
func (s *AuctionService) afterCommit(ctx context.Context, seller domain.Pubkey, ev domain.AuctionEvent) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, seller); err != nil {
			s.logger.WarnContext(ctx, "cache invalidate failed", slog.String("error", err.Error()))
		}
	}

	detail := map[string]any{
		"auction":   ev.Auction.String(),
		"authority": ev.Authority.String(),
		"amount":    ev.Amount,
		"price":     ev.Price,
		"at":        ev.At,
	}
	if ev.Buyer != nil {
		detail["buyer"] = ev.Buyer.String()
	}
	if err := s.audit.Log(ctx, string(ev.Type), detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	if s.bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			if err := s.bus.Publish(ctx, EventChannel, payload); err != nil {
				s.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
			}
			if err := s.bus.StreamAppend(ctx, EventStream, payload); err != nil {
				s.logger.WarnContext(ctx, "event append failed", slog.String("error", err.Error()))
			}
		}
	}

	if s.notifier.Enabled() {
		if err := s.notifier.NotifyEvent(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

func (s *AuctionService) sign(st *domain.Settlement) error {
	digest, err := crypto.ReceiptDigest(*st)
	if err != nil {
		return err
	}
	st.Receipt, err = s.signer.Sign(digest)
	return err
}

// VerifyReceipt checks that st carries a receipt from this node's key.
func (s *AuctionService) VerifyReceipt(st domain.Settlement) error {
	if st.Receipt == "" {
		return fmt.Errorf("service: settlement %s: %w", st.ID, domain.ErrMissingSignature)
	}
	digest, err := crypto.ReceiptDigest(st)
	if err != nil {
		return err
	}
	who, err := crypto.Recover(digest, st.Receipt)
	if err != nil {
		return err
	}
	if who != s.signer.Identity() {
		return fmt.Errorf("service: settlement %s signed by %s: %w", st.ID, who, domain.ErrInvalidSignature)
	}
	return nil
}

// Get returns the live auction of seller, or domain.ErrNotFound.
func (s *AuctionService) Get(ctx context.Context, seller domain.Pubkey) (AuctionView, error) {
	addrs, err := s.ctrl.Derive(seller)
	if err != nil {
		return AuctionView{}, err
	}

	if s.cache != nil {
		if acct, err := s.cache.Get(ctx, seller); err == nil {
			return AuctionView{Account: acct, Addresses: addrs}, nil
		}
	}

	// A miss fills the cache under the same lock the instructions take, so a
	// record read before a termination commits is never stored after it.
	cacheable := false
	if s.cache != nil {
		lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
		unlock, err := s.locks.Acquire(lockCtx, "auction:"+addrs.Auction.String(), s.cfg.LockTTL)
		cancel()
		if err == nil {
			defer unlock()
			cacheable = true
		} else {
			s.logger.DebugContext(ctx, "cache fill skipped", slog.String("error", err.Error()))
		}
	}

	var acct domain.AuctionAccount
	err = s.ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		var err error
		acct, err = tx.Auction(ctx, addrs.Auction)
		return err
	})
	if err != nil {
		return AuctionView{}, fmt.Errorf("service: get auction of %s: %w", seller, err)
	}

	if cacheable {
		if err := s.cache.Set(ctx, seller, acct); err != nil {
			s.logger.DebugContext(ctx, "cache set failed", slog.String("error", err.Error()))
		}
	}
	return AuctionView{Account: acct, Addresses: addrs}, nil
}

// Quote prices seller's auction at the current ledger time.
func (s *AuctionService) Quote(ctx context.Context, seller domain.Pubkey) (domain.Quote, error) {
	view, err := s.Get(ctx, seller)
	if err != nil {
		return domain.Quote{}, err
	}
	now := s.clock.Now()
	rec := view.Account.Record
	return domain.Quote{
		Auction: view.Addresses.Auction,
		Escrow:  view.Addresses.Escrow,
		Record:  rec,
		Now:     now,
		Phase:   auction.PhaseAt(rec, now),
		Price:   auction.QuotePrice(rec, now),
	}, nil
}

// List returns live auctions ordered by starting time.
func (s *AuctionService) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuctionAccount, error) {
	var out []domain.AuctionAccount
	err := s.ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		var err error
		out, err = tx.ListAuctions(ctx, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service: list auctions: %w", err)
	}
	return out, nil
}

// Settlements returns settlement history, optionally for one seller.
func (s *AuctionService) Settlements(ctx context.Context, authority *domain.Pubkey, opts domain.ListOpts) ([]domain.Settlement, error) {
	if authority != nil {
		return s.settlements.ListByAuthority(ctx, *authority, opts)
	}
	return s.settlements.List(ctx, opts)
}

// Settlement returns one settlement by ID.
func (s *AuctionService) Settlement(ctx context.Context, id string) (domain.Settlement, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Settlement{}, fmt.Errorf("service: settlement id %q: %w", id, domain.ErrInvalidArgument)
	}
	st, err := s.settlements.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Settlement{}, fmt.Errorf("service: settlement %s: %w", id, domain.ErrNotFound)
	}
	return st, err
}
