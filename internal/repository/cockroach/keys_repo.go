package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hamodi15-code/SecureTalk/internal/domain"
)

// KeysRepository stores uploaded key material in CockroachDB: public keys
// on the user profile and password-protected private keys for recovery.
type KeysRepository struct {
	pool *pgxpool.Pool
}

// NewKeysRepository creates a new KeysRepository
func NewKeysRepository(pool *pgxpool.Pool) *KeysRepository {
	return &KeysRepository{pool: pool}
}

// SavePublicKey upserts the user's public encryption key on their profile.
func (r *KeysRepository) SavePublicKey(ctx context.Context, userID uuid.UUID, publicKey string) error {
	query := `
		UPDATE profiles
		SET public_key = $2, updated_at = now()
		WHERE user_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, publicKey)
	if err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile not found for user %s", userID)
	}

	return nil
}

// GetPublicKey retrieves another user's public encryption key.
// Returns nil when the user has not uploaded one yet.
func (r *KeysRepository) GetPublicKey(ctx context.Context, userID uuid.UUID) (*domain.PublicKeyRecord, error) {
	query := `SELECT user_id, public_key, updated_at FROM profiles WHERE user_id = $1`

	rec := &domain.PublicKeyRecord{}
	var publicKey *string
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&publicKey,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	if publicKey == nil || *publicKey == "" {
		return nil, nil
	}
	rec.PublicKey = *publicKey

	return rec, nil
}

// SaveRecoverableKey upserts the user's password-protected private key.
// Each upload resets the retention window.
func (r *KeysRepository) SaveRecoverableKey(ctx context.Context, userID uuid.UUID, keyEncrypted string) error {
	query := `
		INSERT INTO recoverable_keys (user_id, key_encrypted, created_at, expires_at)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (user_id) DO UPDATE
		SET key_encrypted = EXCLUDED.key_encrypted,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at
	`

	expiresAt := time.Now().Add(domain.RecoverableKeyTTL)
	_, err := r.pool.Exec(ctx, query, userID, keyEncrypted, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save recoverable key: %w", err)
	}

	return nil
}

// GetRecoverableKey retrieves the user's stored private key if it has not expired.
func (r *KeysRepository) GetRecoverableKey(ctx context.Context, userID uuid.UUID) (*domain.RecoverableKey, error) {
	query := `
		SELECT user_id, key_encrypted, created_at, expires_at
		FROM recoverable_keys
		WHERE user_id = $1 AND expires_at > now()
	`

	key := &domain.RecoverableKey{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&key.UserID,
		&key.KeyEncrypted,
		&key.CreatedAt,
		&key.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recoverable key: %w", err)
	}

	return key, nil
}

// DeleteExpiredKeys removes recoverable keys past their retention window.
// Returns the number of keys deleted.
func (r *KeysRepository) DeleteExpiredKeys(ctx context.Context) (int64, error) {
	query := `DELETE FROM recoverable_keys WHERE expires_at <= now()`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired keys: %w", err)
	}

	return tag.RowsAffected(), nil
}
