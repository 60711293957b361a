package custodian

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/hamodi15-code/SecureTalk/internal/crypto"
)

var (
	// ErrUnauthorized means the bearer credential was missing or rejected.
	ErrUnauthorized = errors.New("custodian: unauthorized")
	// ErrKeyNotFound means the requested user has no public key on record.
	ErrKeyNotFound = errors.New("custodian: public key not found")
)

// Config holds custodian client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the crypto-service key custody endpoints. Both upload
// paths are idempotent upserts keyed by the authenticated user, so a
// caller may safely retry either one. Neither retries on its own: a
// failed public-key upload blocks others from messaging this user and
// should be retried by the caller; a failed private-key upload only
// degrades the server-recovery path.
type Client struct {
	client *resty.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a custodian client for the given base URL.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8084"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &Client{client: cli}
}

// SetToken installs the bearer credential for subsequent calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

func (c *Client) authedRequest(ctx context.Context) *resty.Request {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}

type uploadPublicKeyRequest struct {
	PublicKey string `json:"public_key"`
}

type uploadPrivateKeyRequest struct {
	KeyEncrypted string `json:"key_encrypted"`
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UploadPublicKey exports pub to SPKI/base64 and upserts it into the
// caller's profile record. Failures propagate: public key availability is
// required for others to message this user.
func (c *Client) UploadPublicKey(ctx context.Context, pub *rsa.PublicKey) error {
	encoded, err := crypto.ExportPublicKeySPKI(pub)
	if err != nil {
		return fmt.Errorf("public key upload failed: %w", err)
	}

	resp, err := c.authedRequest(ctx).
		SetBody(uploadPublicKeyRequest{PublicKey: encoded}).
		Put("/v1/keys/public")
	if err != nil {
		return fmt.Errorf("public key upload request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return fmt.Errorf("public key upload failed: %w", err)
	}
	return nil
}

// UploadPrivateKey exports priv to PKCS8/base64 (unencrypted) and upserts
// it into the session-keys table with a 7-day expiry. This is the
// server-recoverable custody path: an availability/recovery mechanism at
// the cost of strict end-to-end confidentiality.
func (c *Client) UploadPrivateKey(ctx context.Context, priv *rsa.PrivateKey) error {
	encoded, err := crypto.ExportPrivateKeyPKCS8(priv)
	if err != nil {
		return fmt.Errorf("private key upload failed: %w", err)
	}

	resp, err := c.authedRequest(ctx).
		SetBody(uploadPrivateKeyRequest{KeyEncrypted: encoded}).
		Put("/v1/keys/private")
	if err != nil {
		return fmt.Errorf("private key upload request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return fmt.Errorf("private key upload failed: %w", err)
	}
	return nil
}

// FetchPublicKey retrieves and imports another user's public key, needed
// to address hybrid-encrypted messages to them.
func (c *Client) FetchPublicKey(ctx context.Context, userID uuid.UUID) (*rsa.PublicKey, error) {
	resp, err := c.authedRequest(ctx).
		Get("/v1/keys/public/" + userID.String())
	if err != nil {
		return nil, fmt.Errorf("public key fetch request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, fmt.Errorf("public key fetch failed: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("public key fetch: invalid response: %w", err)
	}
	var record struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.Unmarshal(env.Data, &record); err != nil {
		return nil, fmt.Errorf("public key fetch: invalid response: %w", err)
	}
	if record.PublicKey == "" {
		return nil, ErrKeyNotFound
	}
	return crypto.ImportPublicKeySPKI(record.PublicKey)
}

func mapHTTPError(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrKeyNotFound
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err == nil && env.Error != nil {
		return fmt.Errorf("server rejected request: %s (%s)", env.Error.Message, env.Error.Code)
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode())
}
