package keys

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hamodi15-code/SecureTalk/internal/service/keys"
	"github.com/hamodi15-code/SecureTalk/pkg/response"
)

// Handler exposes the key custody endpoints
type Handler struct {
	keysService *keys.Service
}

// NewHandler creates a new keys handler
func NewHandler(keysService *keys.Service) *Handler {
	return &Handler{
		keysService: keysService,
	}
}

// UploadPublicKeyRequest carries a base64 SPKI public key
type UploadPublicKeyRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
}

// UploadPublicKey upserts the caller's public encryption key
// PUT /v1/keys/public
func (h *Handler) UploadPublicKey(c *gin.Context) {
	var req UploadPublicKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.keysService.UploadPublicKey(c.Request.Context(), userID, req.PublicKey); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"message": "Public key uploaded"})
}

// GetPublicKey fetches another user's public key
// GET /v1/keys/public/:user_id
func (h *Handler) GetPublicKey(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.BadRequest(c, "Invalid user ID")
		return
	}

	rec, err := h.keysService.GetPublicKey(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"user_id":    rec.UserID,
		"public_key": rec.PublicKey,
		"updated_at": rec.UpdatedAt,
	})
}

// UploadPrivateKeyRequest carries a base64 PKCS8 private key
type UploadPrivateKeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// UploadPrivateKey upserts the caller's recoverable private key copy
// PUT /v1/keys/private
func (h *Handler) UploadPrivateKey(c *gin.Context) {
	var req UploadPrivateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.keysService.UploadPrivateKey(c.Request.Context(), userID, req.Key); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"message": "Private key uploaded"})
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalServerError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}
