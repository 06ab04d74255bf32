package crypto

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

const (
	// MaxSeeds is the maximum number of seeds, including the bump.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed.
	MaxSeedLen = 32

	pdaMarker = "ProgramDerivedAddress"
)

// CreateProgramAddress hashes seeds and programID into an address that no
// private key controls. It returns domain.ErrInvalidSeeds if the hash lands on
// the curve or the seeds are malformed.
func CreateProgramAddress(seeds [][]byte, programID domain.Pubkey) (domain.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return domain.Pubkey{}, fmt.Errorf("crypto: %d seeds exceeds %d: %w", len(seeds), MaxSeeds, domain.ErrInvalidSeeds)
	}

	parts := make([][]byte, 0, len(seeds)+2)
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return domain.Pubkey{}, fmt.Errorf("crypto: seed of %d bytes: %w", len(s), domain.ErrInvalidSeeds)
		}
		parts = append(parts, s)
	}
	parts = append(parts, programID[:], []byte(pdaMarker))

	var addr domain.Pubkey
	copy(addr[:], ethcrypto.Keccak256(parts...))

	if IsOnCurve(addr) {
		return domain.Pubkey{}, fmt.Errorf("crypto: derived address on curve: %w", domain.ErrInvalidSeeds)
	}
	return addr, nil
}

// FindProgramAddress returns the first off-curve address searching the bump
// seed from 255 downwards, together with that bump.
func FindProgramAddress(seeds [][]byte, programID domain.Pubkey) (domain.Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return domain.Pubkey{}, 0, fmt.Errorf("crypto: no viable bump: %w", domain.ErrInvalidSeeds)
}
