package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dutchescrow/internal/auction"
	"github.com/alanyoungcy/dutchescrow/internal/domain"
	"github.com/alanyoungcy/dutchescrow/internal/service"
)

// AuctionService defines the methods that the auction handler requires from
// the service layer.
type AuctionService interface {
	Initialize(ctx context.Context, req domain.SignedInstruction) (service.Outcome, error)
	Bid(ctx context.Context, req domain.SignedInstruction) (service.Outcome, error)
	Close(ctx context.Context, req domain.SignedInstruction) (service.Outcome, error)
	Get(ctx context.Context, seller domain.Pubkey) (service.AuctionView, error)
	Quote(ctx context.Context, seller domain.Pubkey) (domain.Quote, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuctionAccount, error)
	Controller() *auction.Controller
}

// AuctionHandler serves auction endpoints.
type AuctionHandler struct {
	auctions AuctionService
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler with the given service and logger.
func NewAuctionHandler(auctions AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		logger:   logger,
	}
}

type listAuctionsResponse struct {
	Auctions []domain.AuctionAccount `json:"auctions"`
}

// ListAuctions returns live auctions.
// GET /api/auctions?limit=50&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.auctions.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	if auctions == nil {
		auctions = []domain.AuctionAccount{}
	}
	writeJSON(w, http.StatusOK, listAuctionsResponse{Auctions: auctions})
}

// GetAuction returns the live auction of a seller.
// GET /api/auctions/{seller}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	seller, ok := pubkeyParam(w, r, "seller")
	if !ok {
		return
	}
	view, err := h.auctions.Get(r.Context(), seller)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type quoteResponse struct {
	domain.Quote
	PriceSOL string `json:"price_sol"`
}

// GetQuote prices a seller's auction at the current ledger time.
// GET /api/auctions/{seller}/quote
func (h *AuctionHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	seller, ok := pubkeyParam(w, r, "seller")
	if !ok {
		return
	}
	q, err := h.auctions.Quote(r.Context(), seller)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Quote: q, PriceSOL: domain.LamportsToSOL(q.Price).String()})
}

// GetAddresses derives the record and escrow addresses a seller must pass
// to initialize.
// GET /api/addresses/{seller}
func (h *AuctionHandler) GetAddresses(w http.ResponseWriter, r *http.Request) {
	seller, ok := pubkeyParam(w, r, "seller")
	if !ok {
		return
	}
	addrs, err := h.auctions.Controller().Derive(seller)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"program_id": h.auctions.Controller().ProgramID(),
		"seller":     seller,
		"addresses":  addrs,
	})
}

// Initialize executes a signed initialize instruction.
// POST /api/auctions
func (h *AuctionHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req domain.SignedInstruction
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.auctions.Initialize(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// Bid executes a signed bid against the seller in the path.
// POST /api/auctions/{seller}/bid
func (h *AuctionHandler) Bid(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, h.auctions.Bid)
}

// Close executes a signed close against the seller in the path.
// POST /api/auctions/{seller}/close
func (h *AuctionHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.terminate(w, r, h.auctions.Close)
}

func (h *AuctionHandler) terminate(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, domain.SignedInstruction) (service.Outcome, error),
) {
	seller, ok := pubkeyParam(w, r, "seller")
	if !ok {
		return
	}
	var req domain.SignedInstruction
	if !decodeJSON(w, r, &req) {
		return
	}
	// The path only selects the auction record. Owner and authority checks
	// belong to the controller so their error codes reach the caller.
	addrs, err := h.auctions.Controller().Derive(seller)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	if req.Instruction.Accounts.AuctionAccount != addrs.Auction {
		writeError(w, http.StatusBadRequest, "instruction does not target the auction of "+seller.String())
		return
	}

	out, err := op(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
