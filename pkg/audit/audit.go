package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamodi15-code/SecureTalk/pkg/logger"
)

// EventType identifies the audited action.
type EventType string

const (
	EventMessageEncrypted EventType = "message_encrypted"
	EventMessageDecrypted EventType = "message_decrypted"
	EventKeyGenerated     EventType = "key_generated"
	EventKeyUploaded      EventType = "key_uploaded"
	EventKeyHealed        EventType = "session_key_healed"
)

// Event is one audit record. Payloads never include key material.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	UserID         string    `json:"user_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Logger records audit events to a capped Redis list. Failures are logged
// and swallowed so auditing never blocks the request path.
type Logger struct {
	client  *redis.Client
	key     string
	maxSize int64
}

func NewLogger(client *redis.Client) *Logger {
	return &Logger{
		client:  client,
		key:     "audit:crypto",
		maxSize: 100000,
	}
}

// Record appends an event to the audit trail.
func (l *Logger) Record(ctx context.Context, ev Event) {
	if l == nil || l.client == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Warn("audit marshal failed", zap.Error(err))
		return
	}

	pipe := l.client.Pipeline()
	pipe.LPush(ctx, l.key, data)
	pipe.LTrim(ctx, l.key, 0, l.maxSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("audit write failed",
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// Recent returns the newest n events.
func (l *Logger) Recent(ctx context.Context, n int64) ([]Event, error) {
	raw, err := l.client.LRange(ctx, l.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
