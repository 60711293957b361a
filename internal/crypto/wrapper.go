package crypto

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
)

// WrappedKey is the result of password-encrypting a private key:
// EncryptedKey = base64(IV || AES-GCM ciphertext of the private key JWK),
// Salt = base64 of the 16-byte PBKDF2 salt.
type WrappedKey struct {
	EncryptedKey string
	Salt         string
}

// Wrapper performs password-based encryption of private keys. A per-user
// random salt defeats precomputed dictionary attacks, and the AES-GCM tag
// makes wrong-password detection free - no separate integrity check.
type Wrapper struct {
	provider Provider
}

// NewWrapper creates a Wrapper on top of the given crypto provider.
func NewWrapper(provider Provider) *Wrapper {
	return &Wrapper{provider: provider}
}

// EncryptPrivateKey wraps priv under a key derived from password.
func (w *Wrapper) EncryptPrivateKey(priv *rsa.PrivateKey, password string) (*WrappedKey, error) {
	salt, err := w.provider.RandomBytes(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("private key encryption failed: %w", err)
	}
	derived := w.provider.DeriveKeyFromPassword(password, salt)

	jwk, err := ExportPrivateKeyJWK(priv)
	if err != nil {
		return nil, fmt.Errorf("private key encryption failed: %w", err)
	}

	iv, err := w.provider.RandomBytes(IVSize)
	if err != nil {
		return nil, fmt.Errorf("private key encryption failed: %w", err)
	}
	ciphertext, err := w.provider.AEADEncrypt(derived, iv, jwk)
	if err != nil {
		return nil, fmt.Errorf("private key encryption failed: %w", err)
	}

	combined := make([]byte, 0, len(iv)+len(ciphertext))
	combined = append(combined, iv...)
	combined = append(combined, ciphertext...)

	return &WrappedKey{
		EncryptedKey: base64.StdEncoding.EncodeToString(combined),
		Salt:         base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// DecryptPrivateKey re-derives the password key and unwraps the stored
// blob. A wrong password surfaces as an authentication failure, which is
// indistinguishable from corrupted storage; callers treat both as
// "invalid password".
func (w *Wrapper) DecryptPrivateKey(encryptedKey, salt, password string) (*rsa.PrivateKey, error) {
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("private key decryption failed: %w", err)
	}
	combined, err := base64.StdEncoding.DecodeString(encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("private key decryption failed: %w", err)
	}
	if len(combined) < IVSize {
		return nil, fmt.Errorf("private key decryption failed: blob too short")
	}

	derived := w.provider.DeriveKeyFromPassword(password, saltBytes)
	iv, ciphertext := combined[:IVSize], combined[IVSize:]

	jwk, err := w.provider.AEADDecrypt(derived, iv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("private key decryption failed: %w", err)
	}
	priv, err := ImportPrivateKeyJWK(jwk)
	if err != nil {
		return nil, fmt.Errorf("private key decryption failed: %w", err)
	}
	return priv, nil
}
