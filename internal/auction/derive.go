// Package auction implements the Dutch auction controller: address
// derivation, linear price decay and the initialize/bid/close transitions.
package auction

import (
	"fmt"

	"github.com/alanyoungcy/dutchescrow/internal/crypto"
	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// Domain tags separating the record derivation from the custodian's.
const (
	AuctionSeed = "auction"
	EscrowSeed  = "escrow"
)

// Addresses are the derived locations of one seller's auction.
type Addresses struct {
	Auction domain.Pubkey `json:"auction"`
	Escrow  domain.Pubkey `json:"escrow"`
	Bump    uint8         `json:"bump"`
}

func seeds(tag string, authority domain.Pubkey, bump uint8) [][]byte {
	return [][]byte{[]byte(tag), authority[:], {bump}}
}

// AuctionAddress re-derives the record address for authority with a known
// bump.
func AuctionAddress(programID, authority domain.Pubkey, bump uint8) (domain.Pubkey, error) {
	return crypto.CreateProgramAddress(seeds(AuctionSeed, authority, bump), programID)
}

// EscrowAddress re-derives the custodian address for authority with a known
// bump.
func EscrowAddress(programID, authority domain.Pubkey, bump uint8) (domain.Pubkey, error) {
	return crypto.CreateProgramAddress(seeds(EscrowSeed, authority, bump), programID)
}

// FindAddresses returns the highest bump under which both the record and the
// custodian derive to off-curve addresses.
func FindAddresses(programID, authority domain.Pubkey) (Addresses, error) {
	for bump := 255; bump >= 0; bump-- {
		a, err := AddressesWithBump(programID, authority, uint8(bump))
		if err == nil {
			return a, nil
		}
	}
	return Addresses{}, fmt.Errorf("auction: no viable bump for %s: %w", authority, domain.ErrInvalidSeeds)
}

// AddressesWithBump derives both addresses for a stored bump.
func AddressesWithBump(programID, authority domain.Pubkey, bump uint8) (Addresses, error) {
	rec, err := AuctionAddress(programID, authority, bump)
	if err != nil {
		return Addresses{}, err
	}
	esc, err := EscrowAddress(programID, authority, bump)
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{Auction: rec, Escrow: esc, Bump: bump}, nil
}

// TokenAccountSeed tags associated token account derivations.
const TokenAccountSeed = "token"

// AssociatedTokenAddress returns the canonical token account of owner for
// mint. Clients use it to find where a bid should deliver.
func AssociatedTokenAddress(programID, owner, mint domain.Pubkey) (domain.Pubkey, error) {
	addr, _, err := crypto.FindProgramAddress([][]byte{[]byte(TokenAccountSeed), owner[:], mint[:]}, programID)
	if err != nil {
		return domain.Pubkey{}, fmt.Errorf("auction: token address for %s: %w", owner, err)
	}
	return addr, nil
}
