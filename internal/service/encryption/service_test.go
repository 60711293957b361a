package encryption

import (
	"context"
	"encoding/hex"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamodi15-code/SecureTalk/internal/crypto"
	"github.com/hamodi15-code/SecureTalk/internal/repository/cockroach"
	"github.com/hamodi15-code/SecureTalk/pkg/audit"
	apperrors "github.com/hamodi15-code/SecureTalk/pkg/errors"
)

// fakeConversationRepo is an in-memory ConversationRepository with the same
// conditional-write semantics as the CockroachDB implementation.
type fakeConversationRepo struct {
	mu           sync.Mutex
	keys         map[uuid.UUID]*string
	participants map[uuid.UUID]map[uuid.UUID]bool
}

func newFakeRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		keys:         make(map[uuid.UUID]*string),
		participants: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (f *fakeConversationRepo) addConversation(conversationID uuid.UUID, key *string, members ...uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[conversationID] = key
	f.participants[conversationID] = make(map[uuid.UUID]bool)
	for _, m := range members {
		f.participants[conversationID][m] = true
	}
}

func (f *fakeConversationRepo) storedKey(conversationID uuid.UUID) *string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[conversationID]
}

func (f *fakeConversationRepo) GetSessionKey(_ context.Context, conversationID uuid.UUID) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[conversationID]
	if !ok {
		return nil, cockroach.ErrConversationNotFound
	}
	return key, nil
}

func (f *fakeConversationRepo) SetSessionKeyIfAbsent(_ context.Context, conversationID uuid.UUID, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.keys[conversationID]
	if !ok {
		return false, cockroach.ErrConversationNotFound
	}
	if current != nil && *current != "" {
		return false, nil
	}
	f.keys[conversationID] = &key
	return true, nil
}

func (f *fakeConversationRepo) ReplaceSessionKey(_ context.Context, conversationID uuid.UUID, oldKey, newKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.keys[conversationID]
	if !ok || current == nil || *current != oldKey {
		return false, nil
	}
	f.keys[conversationID] = &newKey
	return true, nil
}

func (f *fakeConversationRepo) IsParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.participants[conversationID][userID], nil
}

// recordingAuditor captures audit events for assertions.
type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAuditor) Record(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingAuditor) types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

var hexKeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func validKeyHex(t *testing.T) string {
	t.Helper()
	raw, err := crypto.NewProvider().RandomBytes(crypto.SessionKeySize)
	require.NoError(t, err)
	return hex.EncodeToString(raw)
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode, status int) {
	t.Helper()
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, status, appErr.StatusCode)
}

func TestEncryptRejectsNonParticipant(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	repo.addConversation(conversationID, nil, uuid.New())

	svc := NewService(repo, crypto.NewProvider(), nil)

	_, err := svc.Encrypt(context.Background(), uuid.New(), conversationID, "hello")
	assertCode(t, err, apperrors.ErrCodeForbidden, 403)
}

func TestEncryptUnknownConversation(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	userID := uuid.New()
	repo.addConversation(conversationID, nil, userID)

	svc := NewService(repo, crypto.NewProvider(), nil)

	// Participant check passes only for known conversations, so an unknown
	// ID surfaces as forbidden before key lookup.
	_, err := svc.Encrypt(context.Background(), userID, uuid.New(), "hello")
	require.Error(t, err)
}

func TestEncryptCreatesKeyOnFirstUse(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	userID := uuid.New()
	repo.addConversation(conversationID, nil, userID)

	auditor := &recordingAuditor{}
	svc := NewService(repo, crypto.NewProvider(), auditor)

	result, err := svc.Encrypt(context.Background(), userID, conversationID, "hello")
	require.NoError(t, err)
	require.NotNil(t, result)

	stored := repo.storedKey(conversationID)
	require.NotNil(t, stored)
	assert.Regexp(t, hexKeyPattern, *stored)

	plaintext, err := svc.Decrypt(context.Background(), userID, conversationID, result.Encrypted, result.IV)
	require.NoError(t, err)
	assert.Equal(t, "hello", plaintext)

	assert.Contains(t, auditor.types(), audit.EventMessageEncrypted)
	assert.Contains(t, auditor.types(), audit.EventMessageDecrypted)
}

func TestEncryptReusesExistingKey(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	userID := uuid.New()
	key := validKeyHex(t)
	repo.addConversation(conversationID, &key, userID)

	svc := NewService(repo, crypto.NewProvider(), nil)

	result, err := svc.Encrypt(context.Background(), userID, conversationID, "hello")
	require.NoError(t, err)

	assert.Equal(t, key, *repo.storedKey(conversationID))

	plaintext, err := svc.Decrypt(context.Background(), userID, conversationID, result.Encrypted, result.IV)
	require.NoError(t, err)
	assert.Equal(t, "hello", plaintext)
}

func TestEncryptHealsPlaceholderKey(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	userID := uuid.New()
	placeholder := "temp_key"
	repo.addConversation(conversationID, &placeholder, userID)

	auditor := &recordingAuditor{}
	svc := NewService(repo, crypto.NewProvider(), auditor)

	result, err := svc.Encrypt(context.Background(), userID, conversationID, "hello")
	require.NoError(t, err)

	stored := repo.storedKey(conversationID)
	require.NotNil(t, stored)
	assert.Regexp(t, hexKeyPattern, *stored)
	assert.NotEqual(t, placeholder, *stored)

	plaintext, err := svc.Decrypt(context.Background(), userID, conversationID, result.Encrypted, result.IV)
	require.NoError(t, err)
	assert.Equal(t, "hello", plaintext)

	assert.Contains(t, auditor.types(), audit.EventKeyHealed)
}

func TestDecryptWithPlaceholderKeyIsTypedError(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	userID := uuid.New()
	placeholder := "temp_key"
	repo.addConversation(conversationID, &placeholder, userID)

	svc := NewService(repo, crypto.NewProvider(), nil)

	_, err := svc.Decrypt(context.Background(), userID, conversationID, "deadbeef", "000000000000000000000000")
	assertCode(t, err, apperrors.ErrCodeInvalidSessionKey, 400)
}

func TestDecryptMissingKey(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	userID := uuid.New()
	repo.addConversation(conversationID, nil, userID)

	svc := NewService(repo, crypto.NewProvider(), nil)

	_, err := svc.Decrypt(context.Background(), userID, conversationID, "deadbeef", "000000000000000000000000")
	assertCode(t, err, apperrors.ErrCodeKeyNotFound, 404)
}

func TestDecryptInvalidIV(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	userID := uuid.New()
	key := validKeyHex(t)
	repo.addConversation(conversationID, &key, userID)

	svc := NewService(repo, crypto.NewProvider(), nil)

	tests := []struct {
		name string
		iv   string
	}{
		{"not hex", "zzzz"},
		{"too short", "00ff"},
		{"empty", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Decrypt(context.Background(), userID, conversationID, "deadbeef", tc.iv)
			assertCode(t, err, apperrors.ErrCodeInvalidIV, 400)
		})
	}
}

func TestDecryptUnderReplacedKeyFails(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	userID := uuid.New()
	oldKey := validKeyHex(t)
	repo.addConversation(conversationID, &oldKey, userID)

	svc := NewService(repo, crypto.NewProvider(), nil)

	result, err := svc.Encrypt(context.Background(), userID, conversationID, "hello")
	require.NoError(t, err)

	// Simulate the key being regenerated out from under the stored message.
	newKey := validKeyHex(t)
	won, err := repo.ReplaceSessionKey(context.Background(), conversationID, oldKey, newKey)
	require.NoError(t, err)
	require.True(t, won)

	_, err = svc.Decrypt(context.Background(), userID, conversationID, result.Encrypted, result.IV)
	assertCode(t, err, apperrors.ErrCodeDecryptionFailed, 400)
}

func TestConcurrentFirstEncryptsShareOneKey(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	userID := uuid.New()
	repo.addConversation(conversationID, nil, userID)

	svc := NewService(repo, crypto.NewProvider(), nil)

	const writers = 8
	results := make([]*EncryptResult, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Encrypt(context.Background(), userID, conversationID, "hello")
		}(i)
	}
	wg.Wait()

	stored := repo.storedKey(conversationID)
	require.NotNil(t, stored)
	assert.Regexp(t, hexKeyPattern, *stored)

	// Every writer succeeded and every ciphertext decrypts under the
	// single winning key.
	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		plaintext, err := svc.Decrypt(context.Background(), userID, conversationID, results[i].Encrypted, results[i].IV)
		require.NoError(t, err)
		assert.Equal(t, "hello", plaintext)
	}
}

func TestEncryptFreshIVPerCall(t *testing.T) {
	repo := newFakeRepo()
	conversationID := uuid.New()
	userID := uuid.New()
	key := validKeyHex(t)
	repo.addConversation(conversationID, &key, userID)

	svc := NewService(repo, crypto.NewProvider(), nil)

	first, err := svc.Encrypt(context.Background(), userID, conversationID, "hello")
	require.NoError(t, err)
	second, err := svc.Encrypt(context.Background(), userID, conversationID, "hello")
	require.NoError(t, err)

	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Encrypted, second.Encrypted)
}
