package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keyFileVersion   = 1
)

// keyFile is the on-disk format of an encrypted node key.
type keyFile struct {
	Version    int    `json:"version"`
	Identity   string `json:"identity"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// NodeKeyConfig says where the node's receipt-signing key comes from.
type NodeKeyConfig struct {
	// RawPrivateKey is a hex key; it wins over EncryptedKeyPath.
	RawPrivateKey    string
	EncryptedKeyPath string
	Password         string
}

// LoadNodeKey resolves the node signer from cfg. With no source configured an
// ephemeral key is generated; receipts signed by it are only verifiable for
// the lifetime of the process.
func LoadNodeKey(cfg NodeKeyConfig) (*Signer, bool, error) {
	switch {
	case cfg.RawPrivateKey != "":
		s, err := NewSignerFromHex(cfg.RawPrivateKey)
		return s, false, err
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, false, fmt.Errorf("crypto: read node key file: %w", err)
		}
		s, err := OpenKeyFile(data, cfg.Password)
		return s, false, err
	default:
		k, err := GenerateKey()
		if err != nil {
			return nil, false, err
		}
		return NewSigner(k), true, nil
	}
}

// SealKeyFile encrypts the signer's key with PBKDF2-HMAC-SHA256 and
// AES-256-GCM.
func SealKeyFile(s *Signer, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, ethcrypto.FromECDSA(s.privateKey), nil)

	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Identity:   s.Identity().String(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, "", "  ")
}

// OpenKeyFile decrypts a file produced by SealKeyFile.
func OpenKeyFile(data []byte, password string) (*Signer, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}

	k, err := ethcrypto.ToECDSA(plaintext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypted key invalid: %w", err)
	}
	s := NewSigner(k)
	if kf.Identity != "" && kf.Identity != s.Identity().String() {
		return nil, fmt.Errorf("crypto: key file identity %s does not match key", kf.Identity)
	}
	return s, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
