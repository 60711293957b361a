package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation represents conversation metadata
// Maps to CockroachDB conversations table
type Conversation struct {
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	Type           string    `json:"type" db:"type"`           // direct, group
	Name           *string   `json:"name,omitempty" db:"name"` // For group chats
	CreatedBy      uuid.UUID `json:"created_by" db:"created_by"`
	// SessionKeyEncrypted holds the per-conversation AES-256 session key as
	// 64 hex characters. Nil until the first encrypt call. Legacy rows may
	// hold non-hex placeholder text; the session-key manager overwrites
	// those on first use.
	SessionKeyEncrypted *string   `json:"-" db:"session_key_encrypted"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}
