package crypto

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
)

// HybridCipher implements per-message hybrid encryption: the message body
// is sealed with a fresh AES-256-GCM key, and only that small key pays the
// RSA-OAEP cost. Combined blob layout: wrapped AES key (RSACipherSize
// bytes) followed by the GCM ciphertext.
type HybridCipher struct {
	provider Provider
}

// NewHybridCipher creates a HybridCipher on top of the given provider.
func NewHybridCipher(provider Provider) *HybridCipher {
	return &HybridCipher{provider: provider}
}

// Encrypt seals plaintext for the holder of recipient's private key.
// Returns base64(wrapped key || ciphertext) and base64(IV).
func (h *HybridCipher) Encrypt(plaintext string, recipient *rsa.PublicKey) (encryptedMessage, iv string, err error) {
	ivBytes, err := h.provider.RandomBytes(IVSize)
	if err != nil {
		return "", "", fmt.Errorf("message encryption failed: %w", err)
	}
	aesKey, err := h.provider.RandomBytes(SessionKeySize)
	if err != nil {
		return "", "", fmt.Errorf("message encryption failed: %w", err)
	}

	ciphertext, err := h.provider.AEADEncrypt(aesKey, ivBytes, []byte(plaintext))
	if err != nil {
		return "", "", fmt.Errorf("message encryption failed: %w", err)
	}
	wrappedKey, err := h.provider.WrapKey(recipient, aesKey)
	if err != nil {
		return "", "", fmt.Errorf("message encryption failed: %w", err)
	}

	combined := make([]byte, 0, len(wrappedKey)+len(ciphertext))
	combined = append(combined, wrappedKey...)
	combined = append(combined, ciphertext...)

	return base64.StdEncoding.EncodeToString(combined), base64.StdEncoding.EncodeToString(ivBytes), nil
}

// Decrypt reverses Encrypt with the recipient's private key: splits the
// combined blob at RSACipherSize, unwraps the AES key, then opens the
// message body.
func (h *HybridCipher) Decrypt(encryptedMessage, iv string, priv *rsa.PrivateKey) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(encryptedMessage)
	if err != nil {
		return "", fmt.Errorf("message decryption failed: %w", err)
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("message decryption failed: %w", err)
	}
	if len(combined) <= RSACipherSize {
		return "", fmt.Errorf("message decryption failed: blob too short")
	}

	wrappedKey, ciphertext := combined[:RSACipherSize], combined[RSACipherSize:]

	aesKey, err := h.provider.UnwrapKey(priv, wrappedKey)
	if err != nil {
		return "", fmt.Errorf("message decryption failed: %w", err)
	}
	plaintext, err := h.provider.AEADDecrypt(aesKey, ivBytes, ciphertext)
	if err != nil {
		return "", fmt.Errorf("message decryption failed: %w", err)
	}
	return string(plaintext), nil
}
