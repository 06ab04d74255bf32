package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	k, err := GenerateKey()
	assert.NoError(t, err)
	return NewSigner(k)
}

func sampleInstruction(authority domain.Pubkey) domain.Instruction {
	return domain.Instruction{
		Kind: domain.InstructionInitialize,
		Params: &domain.InitializeParams{
			StartingTime: 1_700_000_000,
			EndingTime:   1_700_000_060,
			StartPrice:   1_000_000_000,
			Amount:       1,
		},
		Accounts: domain.AccountMetas{Authority: authority},
		Nonce:    "n-1",
		IssuedAt: 1_700_000_000,
	}
}

func TestIdentityIsOnCurve(t *testing.T) {
	s := newTestSigner(t)
	check.True(t, IsOnCurve(s.Identity()))
	check.False(t, s.Identity().IsZero())
}

func TestSignerHexRoundTrip(t *testing.T) {
	s := newTestSigner(t)
	again, err := NewSignerFromHex(PrivateKeyHex(s.privateKey))
	assert.NoError(t, err)
	check.Equal(t, s.Identity(), again.Identity())

	_, err = NewSignerFromHex("0xnothex")
	check.Error(t, err)
}

func TestSignAndRecover(t *testing.T) {
	s := newTestSigner(t)
	ins := sampleInstruction(s.Identity())

	sig, err := s.SignInstruction(ins)
	assert.NoError(t, err)
	check.True(t, strings.HasPrefix(sig, "0x"))

	digest, err := InstructionDigest(ins)
	assert.NoError(t, err)
	got, err := Recover(digest, sig)
	assert.NoError(t, err)
	check.Equal(t, s.Identity(), got)
}

func TestRecoverAcceptsLegacyV(t *testing.T) {
	s := newTestSigner(t)
	digest, err := InstructionDigest(sampleInstruction(s.Identity()))
	assert.NoError(t, err)

	sig, err := s.Sign(digest)
	assert.NoError(t, err)

	// bump v from {0,1} to {27,28}
	last := sig[len(sig)-2:]
	legacy := sig[:len(sig)-2] + map[string]string{"00": "1b", "01": "1c"}[last]

	got, err := Recover(digest, legacy)
	assert.NoError(t, err)
	check.Equal(t, s.Identity(), got)
}

func TestRecoverRejectsMalformed(t *testing.T) {
	digest := make([]byte, 32)
	for _, sig := range []string{"", "0x1234", "zz"} {
		_, err := Recover(digest, sig)
		check.True(t, errors.Is(err, domain.ErrInvalidSignature))
	}
}

func TestDigestChangesWithContent(t *testing.T) {
	s := newTestSigner(t)
	a := sampleInstruction(s.Identity())
	b := sampleInstruction(s.Identity())
	b.Params.StartPrice++

	da, err := InstructionDigest(a)
	assert.NoError(t, err)
	da2, err := InstructionDigest(a)
	assert.NoError(t, err)
	db, err := InstructionDigest(b)
	assert.NoError(t, err)

	check.Equal(t, da, da2)
	check.NotEqual(t, da, db)
}

func TestVerifySigners(t *testing.T) {
	seller := newTestSigner(t)
	payer := newTestSigner(t)
	ins := sampleInstruction(seller.Identity())

	sig1, err := seller.SignInstruction(ins)
	assert.NoError(t, err)
	sig2, err := payer.SignInstruction(ins)
	assert.NoError(t, err)

	set, err := VerifySigners(ins, []string{sig1, sig2})
	assert.NoError(t, err)
	check.True(t, set.Has(seller.Identity()))
	check.True(t, set.Has(payer.Identity()))
	check.Equal(t, 2, len(set))

	// a signature over a different instruction recovers a different key
	other := ins
	other.Nonce = "n-2"
	set, err = VerifySigners(other, []string{sig1})
	assert.NoError(t, err)
	check.False(t, set.Has(seller.Identity()))
}

func TestFindProgramAddress(t *testing.T) {
	program := newTestSigner(t).Identity()
	seed := []byte("auction")

	addr, bump, err := FindProgramAddress([][]byte{seed}, program)
	assert.NoError(t, err)
	check.False(t, IsOnCurve(addr))

	again, err := CreateProgramAddress([][]byte{seed, {bump}}, program)
	assert.NoError(t, err)
	check.Equal(t, addr, again)

	// deterministic
	addr2, bump2, err := FindProgramAddress([][]byte{seed}, program)
	assert.NoError(t, err)
	check.Equal(t, addr, addr2)
	check.Equal(t, bump, bump2)

	// different program, different address
	other, _, err := FindProgramAddress([][]byte{seed}, newTestSigner(t).Identity())
	assert.NoError(t, err)
	check.NotEqual(t, addr, other)
}

func TestCreateProgramAddressRejectsBadSeeds(t *testing.T) {
	program := newTestSigner(t).Identity()

	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLen+1)}, program)
	check.True(t, errors.Is(err, domain.ErrInvalidSeeds))

	_, err = CreateProgramAddress(make([][]byte, MaxSeeds+1), program)
	check.True(t, errors.Is(err, domain.ErrInvalidSeeds))
}

func TestKeyFileRoundTrip(t *testing.T) {
	s := newTestSigner(t)
	data, err := SealKeyFile(s, "hunter2")
	assert.NoError(t, err)

	opened, err := OpenKeyFile(data, "hunter2")
	assert.NoError(t, err)
	check.Equal(t, s.Identity(), opened.Identity())

	_, err = OpenKeyFile(data, "wrong")
	check.Error(t, err)

	_, err = SealKeyFile(s, "")
	check.Error(t, err)
}

func TestLoadNodeKey(t *testing.T) {
	s := newTestSigner(t)

	raw, ephemeral, err := LoadNodeKey(NodeKeyConfig{RawPrivateKey: "0x" + PrivateKeyHex(s.privateKey)})
	assert.NoError(t, err)
	check.False(t, ephemeral)
	check.Equal(t, s.Identity(), raw.Identity())

	data, err := SealKeyFile(s, "pw")
	assert.NoError(t, err)
	path := filepath.Join(t.TempDir(), "node.key")
	assert.NoError(t, os.WriteFile(path, data, 0o600))

	fromFile, _, err := LoadNodeKey(NodeKeyConfig{EncryptedKeyPath: path, Password: "pw"})
	assert.NoError(t, err)
	check.Equal(t, s.Identity(), fromFile.Identity())

	gen, ephemeral, err := LoadNodeKey(NodeKeyConfig{})
	assert.NoError(t, err)
	check.True(t, ephemeral)
	check.NotNil(t, gen)
}
