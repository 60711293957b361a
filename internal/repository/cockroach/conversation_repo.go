package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hamodi15-code/SecureTalk/internal/domain"
)

// ErrConversationNotFound is returned when a conversation row does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository handles conversation rows and their session keys
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// GetByID retrieves a conversation by ID
func (r *ConversationRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT conversation_id, type, name, created_by, session_key_encrypted, created_at, updated_at
		FROM conversations
		WHERE conversation_id = $1
	`

	conversation := &domain.Conversation{}
	err := r.pool.QueryRow(ctx, query, conversationID).Scan(
		&conversation.ConversationID,
		&conversation.Type,
		&conversation.Name,
		&conversation.CreatedBy,
		&conversation.SessionKeyEncrypted,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conversation, nil
}

// GetSessionKey returns the stored session key for a conversation.
// A nil result with nil error means the conversation exists but has no key yet.
func (r *ConversationRepository) GetSessionKey(ctx context.Context, conversationID uuid.UUID) (*string, error) {
	query := `SELECT session_key_encrypted FROM conversations WHERE conversation_id = $1`

	var key *string
	err := r.pool.QueryRow(ctx, query, conversationID).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get session key: %w", err)
	}

	return key, nil
}

// SetSessionKeyIfAbsent stores a session key only if the conversation has none.
// Returns true when this call installed the key. When it returns false another
// writer won the race and the caller must re-read the stored key.
func (r *ConversationRepository) SetSessionKeyIfAbsent(ctx context.Context, conversationID uuid.UUID, key string) (bool, error) {
	query := `
		UPDATE conversations
		SET session_key_encrypted = $2, updated_at = now()
		WHERE conversation_id = $1
		  AND (session_key_encrypted IS NULL OR session_key_encrypted = '')
	`

	tag, err := r.pool.Exec(ctx, query, conversationID, key)
	if err != nil {
		return false, fmt.Errorf("failed to set session key: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ReplaceSessionKey swaps a known-bad stored value for a fresh key. The swap
// only happens if the row still holds oldKey, so concurrent healers cannot
// overwrite each other. Returns true when this call won the swap.
func (r *ConversationRepository) ReplaceSessionKey(ctx context.Context, conversationID uuid.UUID, oldKey, newKey string) (bool, error) {
	query := `
		UPDATE conversations
		SET session_key_encrypted = $3, updated_at = now()
		WHERE conversation_id = $1 AND session_key_encrypted = $2
	`

	tag, err := r.pool.Exec(ctx, query, conversationID, oldKey, newKey)
	if err != nil {
		return false, fmt.Errorf("failed to replace session key: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// IsParticipant checks if a user is a participant in a conversation
func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}

	return exists, nil
}
