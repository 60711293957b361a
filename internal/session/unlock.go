package session

import (
	"context"
	"crypto/rsa"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/hamodi15-code/SecureTalk/internal/domain"
)

var (
	// ErrNoKeys means the vault holds no record for this user; key
	// generation has to happen before unlocking.
	ErrNoKeys = errors.New("no encryption keys found for user")

	// ErrInvalidPassword covers both a wrong password and corrupted
	// storage - the AES-GCM tag mismatch cannot tell them apart.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrNoPassword is the sentinel for a cancelled prompt. It is a
	// normal, handleable outcome for callers, not a fault.
	ErrNoPassword = errors.New("no password available")
)

// State is the unlock state of the session.
type State int

const (
	// Locked means no decrypted key is held.
	Locked State = iota
	// Prompting means a password prompt is outstanding; new requests
	// join the pending queue instead of issuing a second prompt.
	Prompting
	// Unlocked means the decrypted private key is held in memory,
	// tied to the current authenticated session.
	Unlocked
)

// KeyStore is the vault surface the manager needs.
type KeyStore interface {
	RetrieveKeys(ctx context.Context, userID uuid.UUID) (*domain.StoredKeyData, error)
}

// KeyUnwrapper decrypts a wrapped private key with a password.
type KeyUnwrapper interface {
	DecryptPrivateKey(encryptedKey, salt, password string) (*rsa.PrivateKey, error)
}

// Prompter asks the user for their encryption password. ok=false means
// the user cancelled. No timeout is imposed; a prompt can stay pending
// until the user acts or ctx is cancelled.
type Prompter interface {
	PromptPassword(ctx context.Context) (password string, ok bool, err error)
}

type unlockResult struct {
	key *rsa.PrivateKey
	err error
}

// Manager gates access to one user's decrypted private key behind
// password entry. The key lives only in volatile memory and is discarded
// on Lock. Invariant: the key is present iff the state is Unlocked.
type Manager struct {
	store    KeyStore
	unwrap   KeyUnwrapper
	prompter Prompter
	userID   uuid.UUID

	mu       sync.Mutex
	state    State
	key      *rsa.PrivateKey
	password string
	waiters  []chan unlockResult
}

// NewManager creates a locked Manager for the given user.
func NewManager(store KeyStore, unwrap KeyUnwrapper, prompter Prompter, userID uuid.UUID) *Manager {
	return &Manager{
		store:    store,
		unwrap:   unwrap,
		prompter: prompter,
		userID:   userID,
		state:    Locked,
	}
}

// State returns the current unlock state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsUnlocked reports whether the decrypted key is held.
func (m *Manager) IsUnlocked() bool {
	return m.State() == Unlocked
}

// UnlockKeys attempts to unlock with an explicitly supplied password.
// Returns ErrNoKeys when the vault is empty for this user and
// ErrInvalidPassword when decryption fails; the state stays Locked in
// both cases.
func (m *Manager) UnlockKeys(ctx context.Context, password string) (bool, error) {
	key, err := m.attemptUnlock(ctx, password)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.setUnlocked(key, password)
	m.mu.Unlock()
	return true, nil
}

// PrivateKey returns the cached decrypted key when unlocked.
func (m *Manager) PrivateKey() (*rsa.PrivateKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Unlocked {
		return nil, false
	}
	return m.key, true
}

// SessionPassword returns the cached password when unlocked. Consumers
// that find the session locked should go through RequestKey instead of
// prompting themselves.
func (m *Manager) SessionPassword() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Unlocked {
		return "", false
	}
	return m.password, true
}

// RequestKey returns the decrypted private key, prompting for the
// password when locked. When already Unlocked the cached key is returned
// immediately with no prompt. When a prompt is already outstanding the
// caller joins the pending queue; exactly one dialog is issued at a time.
// Cancellation of the prompt resolves every waiter with ErrNoPassword.
func (m *Manager) RequestKey(ctx context.Context) (*rsa.PrivateKey, error) {
	m.mu.Lock()
	switch m.state {
	case Unlocked:
		key := m.key
		m.mu.Unlock()
		return key, nil

	case Prompting:
		ch := make(chan unlockResult, 1)
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()
		select {
		case res := <-ch:
			return res.key, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}

	default: // Locked
		m.state = Prompting
		m.mu.Unlock()
		return m.runPrompt(ctx)
	}
}

// Lock discards the in-memory key immediately. The key is not
// recoverable without re-prompting for the password. Called on logout or
// explicit session clear.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = nil
	m.password = ""
	if m.state == Unlocked {
		m.state = Locked
	}
}

// runPrompt issues the single outstanding prompt, attempts the unlock,
// and resolves the initiating caller plus every queued waiter with the
// same result.
func (m *Manager) runPrompt(ctx context.Context) (*rsa.PrivateKey, error) {
	var res unlockResult

	password, ok, err := m.prompter.PromptPassword(ctx)
	switch {
	case err != nil:
		res.err = err
	case !ok:
		res.err = ErrNoPassword
	default:
		res.key, res.err = m.attemptUnlock(ctx, password)
	}

	m.mu.Lock()
	if res.err == nil {
		m.setUnlocked(res.key, password)
	} else {
		m.state = Locked
	}
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}
	return res.key, res.err
}

// attemptUnlock fetches the stored record and tries to decrypt it. Does
// not mutate state.
func (m *Manager) attemptUnlock(ctx context.Context, password string) (*rsa.PrivateKey, error) {
	stored, err := m.store.RetrieveKeys(ctx, m.userID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrNoKeys
	}

	key, err := m.unwrap.DecryptPrivateKey(stored.EncryptedPrivateKey, stored.Salt, password)
	if err != nil {
		// Wrong password and corrupted storage look identical here.
		return nil, ErrInvalidPassword
	}
	return key, nil
}

// setUnlocked transitions to Unlocked. Caller holds m.mu.
func (m *Manager) setUnlocked(key *rsa.PrivateKey, password string) {
	m.state = Unlocked
	m.key = key
	m.password = password
}
