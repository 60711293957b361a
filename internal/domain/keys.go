package domain

import (
	"time"

	"github.com/google/uuid"
)

// StoredKeyData is the per-user record held in the local key vault.
// The private key is only decryptable with the owner's password and the
// matching salt; AES-GCM authentication turns any tampering into a
// decryption failure rather than silent corruption.
type StoredKeyData struct {
	EncryptedPrivateKey string `json:"encrypted_private_key"` // base64(IV || AES-GCM ciphertext of private key JWK)
	PublicKeyJWK        []byte `json:"public_key_jwk"`        // plaintext JSON Web Key
	Salt                string `json:"salt"`                  // base64, 16 bytes
}

// PublicKeyRecord is a user's distributable encryption key.
// Maps to the profiles.public_key column.
type PublicKeyRecord struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	PublicKey string    `json:"public_key" db:"public_key"` // base64(SPKI DER)
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RecoverableKey is the server-held copy of a user's private key.
// Maps to the session_keys table. Holding this copy is a deliberate
// availability/recovery trade-off: the server can decrypt on the user's
// behalf, at the cost of strict end-to-end confidentiality.
type RecoverableKey struct {
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	KeyEncrypted string    `json:"key_encrypted" db:"key_encrypted"` // base64(PKCS8 DER), stored as uploaded
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"` // created_at + 7 days
}

// RecoverableKeyTTL is how long a server-held private key copy stays valid.
const RecoverableKeyTTL = 7 * 24 * time.Hour
