// Package crypto provides secp256k1 identities, instruction signing and
// verification, program-derived addresses and node key storage.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// GenerateKey creates a fresh secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	k, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return k, nil
}

// IdentityOf returns the x-only identity of pub: the X coordinate of its
// compressed encoding.
func IdentityOf(pub *ecdsa.PublicKey) domain.Pubkey {
	var pk domain.Pubkey
	compressed := ethcrypto.CompressPubkey(pub)
	copy(pk[:], compressed[1:])
	return pk
}

// IsOnCurve reports whether pk is the X coordinate of a secp256k1 point, i.e.
// whether a private key could exist for it. Program-derived addresses must not
// be on the curve.
func IsOnCurve(pk domain.Pubkey) bool {
	buf := make([]byte, 1+domain.PubkeySize)
	buf[0] = 0x02
	copy(buf[1:], pk[:])
	_, err := ethcrypto.DecompressPubkey(buf)
	return err == nil
}

// ParsePrivateKey decodes a hex private key, with or without 0x prefix.
func ParsePrivateKey(keyHex string) (*ecdsa.PrivateKey, error) {
	k, err := ethcrypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return k, nil
}

// PrivateKeyHex encodes k without a 0x prefix.
func PrivateKeyHex(k *ecdsa.PrivateKey) string {
	return hex.EncodeToString(ethcrypto.FromECDSA(k))
}
