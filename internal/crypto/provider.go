package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// RSAKeyBits is the modulus length of generated key pairs.
	RSAKeyBits = 2048
	// RSACipherSize is the ciphertext size produced by RSA-OAEP under a
	// 2048-bit key. The hybrid cipher splits combined blobs at this offset.
	RSACipherSize = RSAKeyBits / 8
	// SaltSize is the PBKDF2 salt length in bytes.
	SaltSize = 16
	// IVSize is the AES-GCM nonce length in bytes.
	IVSize = 12
	// SessionKeySize is the AES-256 key length in bytes.
	SessionKeySize = 32
	// PBKDF2Iterations is the derivation cost for password-based keys.
	PBKDF2Iterations = 100000
)

// KeyPair is an RSA-OAEP asymmetric pair. The public half is freely
// distributable; the private half must never leave the owning user's
// control unencrypted on the client.
type KeyPair struct {
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// Provider abstracts the cryptographic primitives used by the key
// lifecycle so tests can substitute a double with deterministic randomness.
type Provider interface {
	// GenerateKeyPair produces a fresh RSA-OAEP 2048-bit pair (SHA-256,
	// public exponent 65537). Safe to call repeatedly; no shared state.
	GenerateKeyPair() (*KeyPair, error)

	// DeriveKeyFromPassword derives a 256-bit AES key from password and
	// salt via PBKDF2/SHA-256 with PBKDF2Iterations.
	DeriveKeyFromPassword(password string, salt []byte) []byte

	// AEADEncrypt seals plaintext under key with the given 12-byte IV
	// using AES-GCM.
	AEADEncrypt(key, iv, plaintext []byte) ([]byte, error)

	// AEADDecrypt opens ciphertext under key and IV. Fails with an
	// authentication error on a wrong key or tampered data.
	AEADDecrypt(key, iv, ciphertext []byte) ([]byte, error)

	// WrapKey encrypts a raw symmetric key with RSA-OAEP under pub.
	WrapKey(pub *rsa.PublicKey, raw []byte) ([]byte, error)

	// UnwrapKey decrypts an RSA-OAEP wrapped key with priv.
	UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error)

	// RandomBytes returns n bytes from the provider's randomness source.
	RandomBytes(n int) ([]byte, error)
}

type provider struct {
	rand io.Reader
}

// NewProvider returns a Provider backed by the OS CSPRNG and the standard
// library cipher implementations.
func NewProvider() Provider {
	return &provider{rand: rand.Reader}
}

// NewProviderWithRand returns a Provider reading randomness from r.
// Intended for tests that need reproducible key material.
func NewProviderWithRand(r io.Reader) Provider {
	return &provider{rand: r}
}

func (p *provider) GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(p.rand, RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &KeyPair{PublicKey: &priv.PublicKey, PrivateKey: priv}, nil
}

func (p *provider) DeriveKeyFromPassword(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, SessionKeySize, sha256.New)
}

func (p *provider) AEADEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid IV length: expected %d bytes, got %d", gcm.NonceSize(), len(iv))
	}
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

func (p *provider) AEADDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid IV length: expected %d bytes, got %d", gcm.NonceSize(), len(iv))
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("authenticated decryption failed: %w", err)
	}
	return plaintext, nil
}

func (p *provider) WrapKey(pub *rsa.PublicKey, raw []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), p.rand, pub, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key: %w", err)
	}
	return wrapped, nil
}

func (p *provider) UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	raw, err := rsa.DecryptOAEP(sha256.New(), p.rand, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key: %w", err)
	}
	return raw, nil
}

func (p *provider) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(p.rand, b); err != nil {
		return nil, fmt.Errorf("random read failed: %w", err)
	}
	return b, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
