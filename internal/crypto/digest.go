package crypto

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// detEncMode encodes with the CBOR core deterministic rules so that every
// party hashes the same bytes for the same instruction.
var detEncMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("crypto: cbor enc mode: %v", err))
	}
	return em
}

// InstructionDigest returns keccak256(cbor(ins)).
func InstructionDigest(ins domain.Instruction) ([]byte, error) {
	b, err := detEncMode.Marshal(ins)
	if err != nil {
		return nil, fmt.Errorf("crypto: encode instruction: %w", err)
	}
	return ethcrypto.Keccak256(b), nil
}

// receipt is the signed subset of a settlement.
type receipt struct {
	ID        string                `cbor:"id"`
	Kind      domain.SettlementKind `cbor:"kind"`
	Auction   domain.Pubkey         `cbor:"auction"`
	Authority domain.Pubkey         `cbor:"authority"`
	Buyer     *domain.Pubkey        `cbor:"buyer,omitempty"`
	Mint      domain.Pubkey         `cbor:"mint"`
	Amount    uint64                `cbor:"amount"`
	Price     uint64                `cbor:"price"`
	SettledAt int64                 `cbor:"settled_at"`
}

// ReceiptDigest returns the digest a node signs to attest a settlement.
func ReceiptDigest(s domain.Settlement) ([]byte, error) {
	b, err := detEncMode.Marshal(receipt{
		ID:        s.ID,
		Kind:      s.Kind,
		Auction:   s.Auction,
		Authority: s.Authority,
		Buyer:     s.Buyer,
		Mint:      s.Mint,
		Amount:    s.Amount,
		Price:     s.Price,
		SettledAt: s.SettledAt,
	})
	if err != nil {
		return nil, fmt.Errorf("crypto: encode receipt: %w", err)
	}
	return ethcrypto.Keccak256(b), nil
}
