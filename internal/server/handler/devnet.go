package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
	"github.com/alanyoungcy/dutchescrow/internal/service"
)

// AccountService defines the devnet faucet operations.
type AccountService interface {
	CreateMint(ctx context.Context, authority domain.Pubkey, decimals uint8) (domain.Mint, error)
	CreateTokenAccount(ctx context.Context, owner, mint domain.Pubkey) (domain.TokenAccount, error)
	MintTo(ctx context.Context, mint, dest domain.Pubkey, amount uint64) (domain.TokenAccount, error)
	Airdrop(ctx context.Context, addr domain.Pubkey, lamports uint64) (domain.SystemAccount, error)
	Balance(ctx context.Context, owner domain.Pubkey, mint *domain.Pubkey) (service.Balances, error)
}

// DevnetHandler serves the faucet endpoints. It is only registered when
// devnet helpers are enabled.
type DevnetHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewDevnetHandler creates a DevnetHandler.
func NewDevnetHandler(accounts AccountService, logger *slog.Logger) *DevnetHandler {
	return &DevnetHandler{accounts: accounts, logger: logger}
}

type createMintRequest struct {
	Authority domain.Pubkey `json:"authority"`
	Decimals  uint8         `json:"decimals"`
}

// CreateMint registers a new mint.
// POST /api/devnet/mints
func (h *DevnetHandler) CreateMint(w http.ResponseWriter, r *http.Request) {
	var req createMintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.accounts.CreateMint(r.Context(), req.Authority, req.Decimals)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type createTokenAccountRequest struct {
	Owner domain.Pubkey `json:"owner"`
	Mint  domain.Pubkey `json:"mint"`
}

// CreateTokenAccount opens the associated token account of owner for mint.
// POST /api/devnet/token-accounts
func (h *DevnetHandler) CreateTokenAccount(w http.ResponseWriter, r *http.Request) {
	var req createTokenAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	acct, err := h.accounts.CreateTokenAccount(r.Context(), req.Owner, req.Mint)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type mintToRequest struct {
	Mint   domain.Pubkey `json:"mint"`
	Dest   domain.Pubkey `json:"dest"`
	Amount uint64        `json:"amount"`
}

// MintTo issues new tokens into a token account.
// POST /api/devnet/mint-to
func (h *DevnetHandler) MintTo(w http.ResponseWriter, r *http.Request) {
	var req mintToRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	acct, err := h.accounts.MintTo(r.Context(), req.Mint, req.Dest, req.Amount)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type airdropRequest struct {
	Address  domain.Pubkey `json:"address"`
	Lamports uint64        `json:"lamports"`
}

// Airdrop credits lamports.
// POST /api/devnet/airdrop
func (h *DevnetHandler) Airdrop(w http.ResponseWriter, r *http.Request) {
	var req airdropRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	acct, err := h.accounts.Airdrop(r.Context(), req.Address, req.Lamports)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Balance returns lamports and, with ?mint=, the owner's token account.
// GET /api/devnet/balances/{owner}
func (h *DevnetHandler) Balance(w http.ResponseWriter, r *http.Request) {
	owner, ok := pubkeyParam(w, r, "owner")
	if !ok {
		return
	}
	var mint *domain.Pubkey
	if v := r.URL.Query().Get("mint"); v != "" {
		pk, err := domain.ParsePubkey(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid mint")
			return
		}
		mint = &pk
	}
	bal, err := h.accounts.Balance(r.Context(), owner, mint)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}
