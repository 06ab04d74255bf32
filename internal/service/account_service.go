package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/dutchescrow/internal/auction"
	"github.com/alanyoungcy/dutchescrow/internal/crypto"
	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// Balances is the holdings of one identity.
type Balances struct {
	Owner    domain.Pubkey        `json:"owner"`
	Lamports uint64               `json:"lamports"`
	SOL      decimal.Decimal      `json:"sol"`
	Token    *domain.TokenAccount `json:"token,omitempty"`
}

// AccountService provides the faucet and token helpers a devnet needs to
// fund sellers and buyers. Deposits for accounts it creates are paid by the
// faucet.
type AccountService struct {
	ctrl       *auction.Controller
	ledger     domain.Ledger
	audit      domain.AuditStore
	airdropCap uint64
	logger     *slog.Logger
}

// NewAccountService creates an AccountService. airdropCap bounds a single
// airdrop in lamports; zero disables the cap.
func NewAccountService(ctrl *auction.Controller, ledger domain.Ledger, audit domain.AuditStore, airdropCap uint64, logger *slog.Logger) *AccountService {
	return &AccountService{
		ctrl:       ctrl,
		ledger:     ledger,
		audit:      audit,
		airdropCap: airdropCap,
		logger:     logger.With(slog.String("component", "account_service")),
	}
}

// CreateMint registers a new mint under a fresh address.
func (s *AccountService) CreateMint(ctx context.Context, authority domain.Pubkey, decimals uint8) (domain.Mint, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return domain.Mint{}, fmt.Errorf("service: create mint: %w", err)
	}
	m := domain.Mint{
		Address:   crypto.IdentityOf(&key.PublicKey),
		Authority: authority,
		Decimals:  decimals,
	}
	err = s.ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		return tx.CreateMint(ctx, m)
	})
	if err != nil {
		return domain.Mint{}, fmt.Errorf("service: create mint: %w", err)
	}

	s.record(ctx, "devnet.create_mint", map[string]any{"mint": m.Address.String(), "authority": authority.String()})
	return m, nil
}

// CreateTokenAccount opens the associated token account of owner for mint.
// It is idempotent: an existing account is returned unchanged.
func (s *AccountService) CreateTokenAccount(ctx context.Context, owner, mint domain.Pubkey) (domain.TokenAccount, error) {
	addr, err := auction.AssociatedTokenAddress(s.ctrl.ProgramID(), owner, mint)
	if err != nil {
		return domain.TokenAccount{}, err
	}

	var acct domain.TokenAccount
	err = s.ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		if _, err := tx.Mint(ctx, mint); err != nil {
			return err
		}
		existing, err := tx.TokenAccount(ctx, addr)
		switch {
		case err == nil:
			if existing.Owner != owner || existing.Mint != mint {
				return domain.ErrAlreadyExists
			}
			acct = existing
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		acct = domain.TokenAccount{
			Address:  addr,
			Mint:     mint,
			Owner:    owner,
			Lamports: s.ctrl.Rent().Deposit(domain.TokenAccountSize),
		}
		return tx.CreateTokenAccount(ctx, acct)
	})
	if err != nil {
		return domain.TokenAccount{}, fmt.Errorf("service: create token account: %w", err)
	}
	return acct, nil
}

// MintTo creates amount new tokens in dest.
func (s *AccountService) MintTo(ctx context.Context, mint, dest domain.Pubkey, amount uint64) (domain.TokenAccount, error) {
	if amount == 0 {
		return domain.TokenAccount{}, fmt.Errorf("service: mint to: %w", domain.ErrInvalidAmount)
	}

	var acct domain.TokenAccount
	err := s.ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		if err := tx.MintTo(ctx, mint, dest, amount); err != nil {
			return err
		}
		var err error
		acct, err = tx.TokenAccount(ctx, dest)
		return err
	})
	if err != nil {
		return domain.TokenAccount{}, fmt.Errorf("service: mint to %s: %w", dest, err)
	}

	s.record(ctx, "devnet.mint_to", map[string]any{"mint": mint.String(), "dest": dest.String(), "amount": amount})
	return acct, nil
}

// Airdrop credits lamports to addr.
func (s *AccountService) Airdrop(ctx context.Context, addr domain.Pubkey, lamports uint64) (domain.SystemAccount, error) {
	if lamports == 0 {
		return domain.SystemAccount{}, fmt.Errorf("service: airdrop: %w", domain.ErrInvalidAmount)
	}
	if s.airdropCap > 0 && lamports > s.airdropCap {
		return domain.SystemAccount{}, fmt.Errorf("service: airdrop of %d exceeds cap %d: %w", lamports, s.airdropCap, domain.ErrInvalidArgument)
	}

	var acct domain.SystemAccount
	err := s.ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		if err := tx.Credit(ctx, addr, lamports); err != nil {
			return err
		}
		var err error
		acct, err = tx.SystemAccount(ctx, addr)
		return err
	})
	if err != nil {
		return domain.SystemAccount{}, fmt.Errorf("service: airdrop: %w", err)
	}

	s.logger.InfoContext(ctx, "airdrop",
		slog.String("to", addr.String()),
		slog.String("sol", domain.LamportsToSOL(lamports).String()),
	)
	s.record(ctx, "devnet.airdrop", map[string]any{"to": addr.String(), "lamports": lamports})
	return acct, nil
}

// Balance returns the lamports of owner and, when mint is given, its
// associated token account for that mint.
func (s *AccountService) Balance(ctx context.Context, owner domain.Pubkey, mint *domain.Pubkey) (Balances, error) {
	var out Balances
	err := s.ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		sys, err := tx.SystemAccount(ctx, owner)
		if err != nil {
			return err
		}
		out = Balances{Owner: owner, Lamports: sys.Lamports, SOL: domain.LamportsToSOL(sys.Lamports)}
		if mint == nil {
			return nil
		}

		addr, err := auction.AssociatedTokenAddress(s.ctrl.ProgramID(), owner, *mint)
		if err != nil {
			return err
		}
		ta, err := tx.TokenAccount(ctx, addr)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Token = &ta
		return nil
	})
	if err != nil {
		return Balances{}, fmt.Errorf("service: balance of %s: %w", owner, err)
	}
	return out, nil
}

func (s *AccountService) record(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
