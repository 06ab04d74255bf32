package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// SettlementService defines the settlement queries the handler needs.
type SettlementService interface {
	Settlements(ctx context.Context, authority *domain.Pubkey, opts domain.ListOpts) ([]domain.Settlement, error)
	Settlement(ctx context.Context, id string) (domain.Settlement, error)
	VerifyReceipt(st domain.Settlement) error
}

// SettlementHandler serves settlement history.
type SettlementHandler struct {
	settlements SettlementService
	logger      *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlements SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, logger: logger}
}

type listSettlementsResponse struct {
	Settlements []domain.Settlement `json:"settlements"`
}

// ListSettlements returns settlement history, newest first.
// GET /api/settlements?authority=0x...&since=...&until=...&limit=50&offset=0
func (h *SettlementHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	var authority *domain.Pubkey
	if v := r.URL.Query().Get("authority"); v != "" {
		pk, err := domain.ParsePubkey(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid authority")
			return
		}
		authority = &pk
	}

	out, err := h.settlements.Settlements(r.Context(), authority, parseListOpts(r))
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	if out == nil {
		out = []domain.Settlement{}
	}
	writeJSON(w, http.StatusOK, listSettlementsResponse{Settlements: out})
}

type settlementResponse struct {
	domain.Settlement
	ReceiptValid bool `json:"receipt_valid"`
}

// GetSettlement returns one settlement and whether its receipt verifies
// against this node's key.
// GET /api/settlements/{id}
func (h *SettlementHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	st, err := h.settlements.Settlement(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementResponse{
		Settlement:   st,
		ReceiptValid: h.settlements.VerifyReceipt(st) == nil,
	})
}
