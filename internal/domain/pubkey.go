package domain

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PubkeySize is the width of an identity or account address in bytes.
const PubkeySize = 32

// Pubkey is a 32-byte identity. It names signers (sellers, buyers) as well as
// every account held by the ledger: auction records, escrow custodians, token
// accounts and mints.
type Pubkey [PubkeySize]byte

// ParsePubkey decodes a 0x-prefixed hex string into a Pubkey.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	b, err := hexutil.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("domain: parse pubkey %q: %w", s, err)
	}
	if len(b) != PubkeySize {
		return pk, fmt.Errorf("domain: parse pubkey %q: expected %d bytes, got %d", s, PubkeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MustParsePubkey is like ParsePubkey but panics on malformed input. Intended
// for constants and tests.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromBytes copies b into a Pubkey. It returns an error if b is not
// exactly PubkeySize bytes long.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeySize {
		return pk, fmt.Errorf("domain: pubkey from bytes: expected %d bytes, got %d", PubkeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the 0x-prefixed hex form.
func (pk Pubkey) String() string {
	return hexutil.Encode(pk[:])
}

// Bytes returns a copy of the key as a slice.
func (pk Pubkey) Bytes() []byte {
	out := make([]byte, PubkeySize)
	copy(out, pk[:])
	return out
}

// IsZero reports whether pk is the all-zero key.
func (pk Pubkey) IsZero() bool {
	return pk == Pubkey{}
}

// Equal reports whether pk and other are the same key.
func (pk Pubkey) Equal(other Pubkey) bool {
	return bytes.Equal(pk[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
