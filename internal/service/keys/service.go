package keys

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamodi15-code/SecureTalk/internal/domain"
	"github.com/hamodi15-code/SecureTalk/pkg/audit"
	apperrors "github.com/hamodi15-code/SecureTalk/pkg/errors"
	"github.com/hamodi15-code/SecureTalk/pkg/logger"
	"github.com/hamodi15-code/SecureTalk/pkg/metrics"
	"github.com/hamodi15-code/SecureTalk/pkg/retry"
)

// KeysRepository is the storage surface for uploaded key material.
type KeysRepository interface {
	SavePublicKey(ctx context.Context, userID uuid.UUID, publicKey string) error
	GetPublicKey(ctx context.Context, userID uuid.UUID) (*domain.PublicKeyRecord, error)
	SaveRecoverableKey(ctx context.Context, userID uuid.UUID, keyEncrypted string) error
	DeleteExpiredKeys(ctx context.Context) (int64, error)
}

// AuditLogger records security-relevant events. May be nil in tests.
type AuditLogger interface {
	Record(ctx context.Context, ev audit.Event)
}

// Service handles key upload and lookup. Uploads are idempotent upserts,
// so transient failures are retried with backoff.
type Service struct {
	repo     KeysRepository
	auditor  AuditLogger
	retryCfg retry.Config
}

// NewService creates the keys service.
func NewService(repo KeysRepository, auditor AuditLogger) *Service {
	return &Service{
		repo:     repo,
		auditor:  auditor,
		retryCfg: retry.DefaultConfig(),
	}
}

// UploadPublicKey stores the caller's public encryption key on their profile.
// The key must be base64-encoded SPKI DER.
func (s *Service) UploadPublicKey(ctx context.Context, userID uuid.UUID, publicKey string) error {
	if publicKey == "" {
		return apperrors.ValidationError("public_key is required")
	}
	if _, err := base64.StdEncoding.DecodeString(publicKey); err != nil {
		return apperrors.InvalidInputError("public_key must be base64-encoded")
	}

	err := retry.Do(ctx, "save public key", s.retryCfg, func() error {
		return s.repo.SavePublicKey(ctx, userID, publicKey)
	})
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	metrics.KeyUploadsTotal.WithLabelValues("public").Inc()
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Event{
			Type:   audit.EventKeyUploaded,
			UserID: userID.String(),
			Detail: "public",
		})
	}
	return nil
}

// GetPublicKey returns another user's public key for message encryption.
func (s *Service) GetPublicKey(ctx context.Context, userID uuid.UUID) (*domain.PublicKeyRecord, error) {
	rec, err := s.repo.GetPublicKey(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if rec == nil {
		return nil, apperrors.KeyNotFoundError()
	}
	return rec, nil
}

// UploadPrivateKey stores the caller's recovery copy of their private key.
// The key must be base64-encoded PKCS8 DER. Each upload restarts the
// retention window.
func (s *Service) UploadPrivateKey(ctx context.Context, userID uuid.UUID, keyEncrypted string) error {
	if keyEncrypted == "" {
		return apperrors.ValidationError("key is required")
	}
	if _, err := base64.StdEncoding.DecodeString(keyEncrypted); err != nil {
		return apperrors.InvalidInputError("key must be base64-encoded")
	}

	err := retry.Do(ctx, "save recoverable key", s.retryCfg, func() error {
		return s.repo.SaveRecoverableKey(ctx, userID, keyEncrypted)
	})
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	metrics.KeyUploadsTotal.WithLabelValues("private").Inc()
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Event{
			Type:   audit.EventKeyUploaded,
			UserID: userID.String(),
			Detail: "private",
		})
	}
	return nil
}

// SweepExpired deletes recoverable keys past their retention window.
// Intended to run periodically from the service main loop.
func (s *Service) SweepExpired(ctx context.Context) {
	deleted, err := s.repo.DeleteExpiredKeys(ctx)
	if err != nil {
		logger.Log.Error("expired key sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		logger.Log.Info("swept expired recoverable keys", zap.Int64("deleted", deleted))
	}
}

// RunSweeper runs SweepExpired on the given interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepExpired(ctx)
		}
	}
}
