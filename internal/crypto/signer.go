package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// signatureLen is r || s || v.
const signatureLen = 65

// Signer signs instruction and receipt digests with one secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	identity   domain.Pubkey
}

// NewSigner wraps an existing private key.
func NewSigner(k *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: k,
		identity:   IdentityOf(&k.PublicKey),
	}
}

// NewSignerFromHex parses a hex-encoded private key.
func NewSignerFromHex(keyHex string) (*Signer, error) {
	k, err := ParsePrivateKey(keyHex)
	if err != nil {
		return nil, err
	}
	return NewSigner(k), nil
}

// Identity returns the signer's x-only public identity.
func (s *Signer) Identity() domain.Pubkey {
	return s.identity
}

// Sign signs a 32-byte digest and returns the 0x-prefixed hex signature.
func (s *Signer) Sign(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// SignInstruction signs the canonical digest of ins.
func (s *Signer) SignInstruction(ins domain.Instruction) (string, error) {
	digest, err := InstructionDigest(ins)
	if err != nil {
		return "", err
	}
	return s.Sign(digest)
}

// Recover returns the identity that produced sigHex over digest. Both v in
// {0,1} and the legacy {27,28} forms are accepted.
func Recover(digest []byte, sigHex string) (domain.Pubkey, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return domain.Pubkey{}, fmt.Errorf("crypto: decode signature: %w", domain.ErrInvalidSignature)
	}
	if len(sig) != signatureLen {
		return domain.Pubkey{}, fmt.Errorf("crypto: signature length %d: %w", len(sig), domain.ErrInvalidSignature)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return domain.Pubkey{}, fmt.Errorf("crypto: recover: %w", domain.ErrInvalidSignature)
	}
	return IdentityOf(pub), nil
}

// VerifySigners recovers every signature over the digest of ins and returns
// the resulting signer set. Any malformed signature rejects the whole request.
func VerifySigners(ins domain.Instruction, sigs []string) (domain.SignerSet, error) {
	digest, err := InstructionDigest(ins)
	if err != nil {
		return nil, err
	}

	set := make(domain.SignerSet, len(sigs))
	for _, sig := range sigs {
		id, err := Recover(digest, sig)
		if err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, nil
}
