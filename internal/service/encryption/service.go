package encryption

import (
	"context"
	"encoding/hex"
	"errors"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamodi15-code/SecureTalk/internal/crypto"
	"github.com/hamodi15-code/SecureTalk/internal/repository/cockroach"
	"github.com/hamodi15-code/SecureTalk/pkg/audit"
	apperrors "github.com/hamodi15-code/SecureTalk/pkg/errors"
	"github.com/hamodi15-code/SecureTalk/pkg/logger"
	"github.com/hamodi15-code/SecureTalk/pkg/metrics"
)

// sessionKeyPattern matches a valid stored session key: 32 bytes hex-encoded.
var sessionKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ConversationRepository is the subset of conversation storage the
// encryption service needs.
type ConversationRepository interface {
	GetSessionKey(ctx context.Context, conversationID uuid.UUID) (*string, error)
	SetSessionKeyIfAbsent(ctx context.Context, conversationID uuid.UUID, key string) (bool, error)
	ReplaceSessionKey(ctx context.Context, conversationID uuid.UUID, oldKey, newKey string) (bool, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

// AuditLogger records security-relevant events. May be nil in tests.
type AuditLogger interface {
	Record(ctx context.Context, ev audit.Event)
}

// Service encrypts and decrypts conversation messages with a per-conversation
// AES-256 session key that it creates lazily and repairs when a stored value
// turns out to be a legacy placeholder rather than real key material.
type Service struct {
	conversations ConversationRepository
	provider      crypto.Provider
	auditor       AuditLogger
}

// NewService creates the encryption service.
func NewService(conversations ConversationRepository, provider crypto.Provider, auditor AuditLogger) *Service {
	return &Service{
		conversations: conversations,
		provider:      provider,
		auditor:       auditor,
	}
}

// EncryptResult carries the hex-encoded ciphertext and IV of one message.
type EncryptResult struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
}

// Encrypt encrypts a message for a conversation, creating the conversation's
// session key on first use.
func (s *Service) Encrypt(ctx context.Context, userID, conversationID uuid.UUID, message string) (*EncryptResult, error) {
	if err := s.authorize(ctx, userID, conversationID); err != nil {
		metrics.EncryptTotal.WithLabelValues("denied").Inc()
		return nil, err
	}

	key, err := s.ensureSessionKey(ctx, conversationID)
	if err != nil {
		metrics.EncryptTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	iv, err := s.provider.RandomBytes(crypto.IVSize)
	if err != nil {
		metrics.EncryptTotal.WithLabelValues("error").Inc()
		return nil, apperrors.InternalError("failed to generate IV")
	}

	ciphertext, err := s.provider.AEADEncrypt(key, iv, []byte(message))
	if err != nil {
		metrics.EncryptTotal.WithLabelValues("error").Inc()
		return nil, apperrors.InternalError("encryption failed")
	}

	metrics.EncryptTotal.WithLabelValues("success").Inc()
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Event{
			Type:           audit.EventMessageEncrypted,
			UserID:         userID.String(),
			ConversationID: conversationID.String(),
		})
	}

	return &EncryptResult{
		Encrypted: hex.EncodeToString(ciphertext),
		IV:        hex.EncodeToString(iv),
	}, nil
}

// Decrypt decrypts a message previously encrypted for the conversation.
func (s *Service) Decrypt(ctx context.Context, userID, conversationID uuid.UUID, encryptedMessage, ivHex string) (string, error) {
	if err := s.authorize(ctx, userID, conversationID); err != nil {
		metrics.DecryptTotal.WithLabelValues("denied").Inc()
		return "", err
	}

	stored, err := s.conversations.GetSessionKey(ctx, conversationID)
	if err != nil {
		if errors.Is(err, cockroach.ErrConversationNotFound) {
			metrics.DecryptTotal.WithLabelValues("not_found").Inc()
			return "", apperrors.ConversationNotFoundError()
		}
		metrics.DecryptTotal.WithLabelValues("error").Inc()
		return "", apperrors.DatabaseError(err)
	}
	if stored == nil || *stored == "" {
		metrics.DecryptTotal.WithLabelValues("not_found").Inc()
		return "", apperrors.KeyNotFoundError()
	}

	// The stored key must be real material, not a legacy placeholder.
	// Decrypt never heals: a message encrypted under a placeholder value
	// is unrecoverable and the caller is told to regenerate by sending.
	if !sessionKeyPattern.MatchString(*stored) {
		metrics.DecryptTotal.WithLabelValues("invalid_key").Inc()
		return "", apperrors.InvalidSessionKeyError()
	}

	key, err := hex.DecodeString(*stored)
	if err != nil {
		metrics.DecryptTotal.WithLabelValues("invalid_key").Inc()
		return "", apperrors.KeyParseError(err)
	}
	if len(key) != crypto.SessionKeySize {
		metrics.DecryptTotal.WithLabelValues("invalid_key").Inc()
		return "", apperrors.InvalidKeyLengthError(len(key))
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != crypto.IVSize {
		metrics.DecryptTotal.WithLabelValues("invalid_iv").Inc()
		return "", apperrors.InvalidIVError()
	}

	ciphertext, err := hex.DecodeString(encryptedMessage)
	if err != nil {
		metrics.DecryptTotal.WithLabelValues("invalid_ciphertext").Inc()
		return "", apperrors.ValidationError("Invalid ciphertext format")
	}

	plaintext, err := s.provider.AEADDecrypt(key, iv, ciphertext)
	if err != nil {
		metrics.DecryptTotal.WithLabelValues("failed").Inc()
		return "", apperrors.DecryptionFailedError(err)
	}

	metrics.DecryptTotal.WithLabelValues("success").Inc()
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Event{
			Type:           audit.EventMessageDecrypted,
			UserID:         userID.String(),
			ConversationID: conversationID.String(),
		})
	}

	return string(plaintext), nil
}

func (s *Service) authorize(ctx context.Context, userID, conversationID uuid.UUID) error {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if !ok {
		return apperrors.ForbiddenError("You are not a participant in this conversation")
	}
	return nil
}

// ensureSessionKey returns the conversation's session key as raw bytes,
// creating it if the conversation has none and replacing it if the stored
// value is not valid key material. Creation uses insert-if-absent so the
// first writer wins and concurrent creators adopt the winning key.
func (s *Service) ensureSessionKey(ctx context.Context, conversationID uuid.UUID) ([]byte, error) {
	stored, err := s.conversations.GetSessionKey(ctx, conversationID)
	if err != nil {
		if errors.Is(err, cockroach.ErrConversationNotFound) {
			return nil, apperrors.ConversationNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	if stored == nil || *stored == "" {
		return s.createSessionKey(ctx, conversationID)
	}

	if !sessionKeyPattern.MatchString(*stored) {
		return s.healSessionKey(ctx, conversationID, *stored)
	}

	return hex.DecodeString(*stored)
}

func (s *Service) createSessionKey(ctx context.Context, conversationID uuid.UUID) ([]byte, error) {
	fresh, err := s.generateKeyHex()
	if err != nil {
		return nil, err
	}

	won, err := s.conversations.SetSessionKeyIfAbsent(ctx, conversationID, fresh)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if won {
		metrics.SessionKeysCreated.Inc()
		logger.FromContext(ctx).Info("session key created",
			zap.String("conversation_id", conversationID.String()),
		)
		return hex.DecodeString(fresh)
	}

	// Lost the race. Adopt whatever the winner installed.
	return s.readWinner(ctx, conversationID)
}

// healSessionKey replaces a stored value that is not valid key material,
// such as placeholder text seeded into legacy conversation rows. The swap
// is conditional on the old value so concurrent healers converge on one key.
func (s *Service) healSessionKey(ctx context.Context, conversationID uuid.UUID, invalid string) ([]byte, error) {
	fresh, err := s.generateKeyHex()
	if err != nil {
		return nil, err
	}

	won, err := s.conversations.ReplaceSessionKey(ctx, conversationID, invalid, fresh)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if won {
		metrics.SessionKeysHealed.Inc()
		logger.FromContext(ctx).Warn("replaced invalid session key",
			zap.String("conversation_id", conversationID.String()),
			zap.Int("old_length", len(invalid)),
		)
		if s.auditor != nil {
			s.auditor.Record(ctx, audit.Event{
				Type:           audit.EventKeyHealed,
				ConversationID: conversationID.String(),
			})
		}
		return hex.DecodeString(fresh)
	}

	return s.readWinner(ctx, conversationID)
}

// readWinner re-reads the stored key after losing a conditional write.
func (s *Service) readWinner(ctx context.Context, conversationID uuid.UUID) ([]byte, error) {
	stored, err := s.conversations.GetSessionKey(ctx, conversationID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if stored == nil || !sessionKeyPattern.MatchString(*stored) {
		return nil, apperrors.InvalidSessionKeyError()
	}
	return hex.DecodeString(*stored)
}

func (s *Service) generateKeyHex() (string, error) {
	raw, err := s.provider.RandomBytes(crypto.SessionKeySize)
	if err != nil {
		return "", apperrors.InternalError("failed to generate session key")
	}
	return hex.EncodeToString(raw), nil
}
