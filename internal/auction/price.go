package auction

import (
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// Price returns the settlement price at now:
//
//	startingPrice - floor(startingPrice * elapsed / duration)
//
// The product is computed in 256 bits. Outside the window it returns
// ErrAuctionEarly or ErrAuctionLate.
func Price(r domain.AuctionRecord, now int64) (uint64, error) {
	if now < r.StartingTime {
		return 0, domain.ErrAuctionEarly
	}
	if now > r.EndingTime {
		return 0, domain.ErrAuctionLate
	}
	if r.StartingTime >= r.EndingTime {
		return 0, domain.ErrInvalidDateRange
	}
	return decay(r, now), nil
}

// QuotePrice is Price clamped to the window: the starting price before it
// opens and zero after it ends.
func QuotePrice(r domain.AuctionRecord, now int64) uint64 {
	switch PhaseAt(r, now) {
	case domain.PhasePending:
		return uint64(r.StartingPrice)
	case domain.PhaseExpired:
		return 0
	}
	if r.StartingTime >= r.EndingTime {
		return 0
	}
	return decay(r, now)
}

// decay assumes StartingTime <= now <= EndingTime and StartingTime < EndingTime.
func decay(r domain.AuctionRecord, now int64) uint64 {
	// unsigned differences are exact here even when the int64 subtraction
	// would overflow
	duration := uint64(r.EndingTime) - uint64(r.StartingTime)
	elapsed := uint64(now) - uint64(r.StartingTime)

	start := uint256.NewInt(uint64(r.StartingPrice))
	drop := new(uint256.Int).Mul(start, uint256.NewInt(elapsed))
	drop.Div(drop, uint256.NewInt(duration))

	return uint64(r.StartingPrice) - drop.Uint64()
}

// PhaseAt places now relative to the auction window.
func PhaseAt(r domain.AuctionRecord, now int64) domain.Phase {
	switch {
	case now < r.StartingTime:
		return domain.PhasePending
	case now > r.EndingTime:
		return domain.PhaseExpired
	default:
		return domain.PhaseOpen
	}
}
