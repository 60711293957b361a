package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hamodi15-code/SecureTalk/internal/domain"
)

// Vault is the durable client-side key store: one record per user,
// replaced wholesale on re-store (last write wins). SQLite transactions
// make each store/retrieve atomic - no partial records are observable.
type Vault struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS keys (
	user_id               TEXT PRIMARY KEY,
	encrypted_private_key TEXT NOT NULL,
	public_key_jwk        BLOB NOT NULL,
	salt                  TEXT NOT NULL
);`

// Open opens (or creates) the vault database at path and ensures the
// schema exists.
func Open(path string) (*Vault, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key vault: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open key vault: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate key vault: %w", err)
	}
	return &Vault{db: db}, nil
}

// StoreKeys upserts the user's key record. Concurrent stores for the same
// user race last-write-wins; the row is never partially visible.
func (v *Vault) StoreKeys(ctx context.Context, userID uuid.UUID, data *domain.StoredKeyData) error {
	query := `
		INSERT INTO keys (user_id, encrypted_private_key, public_key_jwk, salt)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			encrypted_private_key = excluded.encrypted_private_key,
			public_key_jwk        = excluded.public_key_jwk,
			salt                  = excluded.salt
	`
	_, err := v.db.ExecContext(ctx, query, userID.String(), data.EncryptedPrivateKey, data.PublicKeyJWK, data.Salt)
	if err != nil {
		return fmt.Errorf("failed to store keys: %w", err)
	}
	return nil
}

// RetrieveKeys returns the user's key record, or nil when none exists.
// A missing record is the expected state before first key generation,
// not an error.
func (v *Vault) RetrieveKeys(ctx context.Context, userID uuid.UUID) (*domain.StoredKeyData, error) {
	query := `
		SELECT encrypted_private_key, public_key_jwk, salt
		FROM keys
		WHERE user_id = ?
	`
	data := &domain.StoredKeyData{}
	err := v.db.QueryRowContext(ctx, query, userID.String()).Scan(
		&data.EncryptedPrivateKey,
		&data.PublicKeyJWK,
		&data.Salt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve keys: %w", err)
	}
	return data, nil
}

// DeleteKeys removes the user's record. Used when keys are regenerated
// from scratch rather than replaced.
func (v *Vault) DeleteKeys(ctx context.Context, userID uuid.UUID) error {
	if _, err := v.db.ExecContext(ctx, `DELETE FROM keys WHERE user_id = ?`, userID.String()); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (v *Vault) Close() error {
	return v.db.Close()
}
