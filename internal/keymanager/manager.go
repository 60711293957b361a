package keymanager

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamodi15-code/SecureTalk/internal/crypto"
	"github.com/hamodi15-code/SecureTalk/internal/domain"
	"github.com/hamodi15-code/SecureTalk/pkg/logger"
	"github.com/hamodi15-code/SecureTalk/pkg/retry"
)

// Custodian is the single key-management surface callers program
// against. The two implementations differ only in where the private key
// may rest: LocalOnlyCustody keeps it exclusively in the local vault
// (true end-to-end confidentiality), ServerRecoverableCustody
// additionally places an unwrapped copy with the server so messages stay
// recoverable when the password is lost. Operators choose one without
// restructuring the rest of the system.
type Custodian interface {
	// GenerateAndStoreKeys creates a fresh key pair, wraps the private
	// half under password, persists the record locally, and publishes
	// the public key. Returns the generated pair for immediate use.
	GenerateAndStoreKeys(ctx context.Context, password string) (*crypto.KeyPair, error)

	// HasExistingKeys reports whether the local vault already holds a
	// record for this user.
	HasExistingKeys(ctx context.Context) (bool, error)
}

// KeyStore is the vault surface the custodians need.
type KeyStore interface {
	StoreKeys(ctx context.Context, userID uuid.UUID, data *domain.StoredKeyData) error
	RetrieveKeys(ctx context.Context, userID uuid.UUID) (*domain.StoredKeyData, error)
}

// RemoteUploader is the custodian-client surface: both uploads are
// idempotent upserts keyed by the authenticated user.
type RemoteUploader interface {
	UploadPublicKey(ctx context.Context, pub *rsa.PublicKey) error
	UploadPrivateKey(ctx context.Context, priv *rsa.PrivateKey) error
}

type custody struct {
	provider crypto.Provider
	wrapper  *crypto.Wrapper
	store    KeyStore
	uploader RemoteUploader
	userID   uuid.UUID

	// recoverable enables the server-held private key copy.
	recoverable bool
}

// LocalOnlyCustody never lets the private key leave the client
// unencrypted.
type LocalOnlyCustody struct {
	custody
}

// ServerRecoverableCustody additionally uploads the unwrapped private key
// (PKCS8, base64) for the server-side recovery path.
type ServerRecoverableCustody struct {
	custody
}

// NewLocalOnlyCustody builds the local-only capability.
func NewLocalOnlyCustody(provider crypto.Provider, store KeyStore, uploader RemoteUploader, userID uuid.UUID) *LocalOnlyCustody {
	return &LocalOnlyCustody{custody{
		provider: provider,
		wrapper:  crypto.NewWrapper(provider),
		store:    store,
		uploader: uploader,
		userID:   userID,
	}}
}

// NewServerRecoverableCustody builds the server-recoverable capability.
func NewServerRecoverableCustody(provider crypto.Provider, store KeyStore, uploader RemoteUploader, userID uuid.UUID) *ServerRecoverableCustody {
	return &ServerRecoverableCustody{custody{
		provider:    provider,
		wrapper:     crypto.NewWrapper(provider),
		store:       store,
		uploader:    uploader,
		userID:      userID,
		recoverable: true,
	}}
}

func (c *custody) GenerateAndStoreKeys(ctx context.Context, password string) (*crypto.KeyPair, error) {
	pair, err := c.provider.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("key setup failed: %w", err)
	}

	wrapped, err := c.wrapper.EncryptPrivateKey(pair.PrivateKey, password)
	if err != nil {
		return nil, fmt.Errorf("key setup failed: %w", err)
	}
	publicJWK, err := crypto.ExportPublicKeyJWK(pair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("key setup failed: %w", err)
	}

	if err := c.store.StoreKeys(ctx, c.userID, &domain.StoredKeyData{
		EncryptedPrivateKey: wrapped.EncryptedKey,
		PublicKeyJWK:        publicJWK,
		Salt:                wrapped.Salt,
	}); err != nil {
		return nil, fmt.Errorf("key setup failed: %w", err)
	}

	if c.recoverable {
		// A failed private-key upload only degrades the recovery path,
		// so it is logged and not fatal to setup.
		if err := retry.Do(ctx, "upload private key", retry.DefaultConfig(), func() error {
			return c.uploader.UploadPrivateKey(ctx, pair.PrivateKey)
		}); err != nil {
			logger.Warn("recoverable private key upload failed",
				zap.String("user_id", c.userID.String()),
				zap.Error(err),
			)
		}
	}

	// Public key availability is required for others to message this
	// user, so this failure propagates.
	if err := retry.Do(ctx, "upload public key", retry.DefaultConfig(), func() error {
		return c.uploader.UploadPublicKey(ctx, pair.PublicKey)
	}); err != nil {
		return nil, fmt.Errorf("public key publication failed: %w", err)
	}

	logger.Info("encryption keys generated and stored",
		zap.String("user_id", c.userID.String()),
		zap.Bool("server_recoverable", c.recoverable),
	)
	return pair, nil
}

func (c *custody) HasExistingKeys(ctx context.Context) (bool, error) {
	stored, err := c.store.RetrieveKeys(ctx, c.userID)
	if err != nil {
		return false, err
	}
	return stored != nil, nil
}
