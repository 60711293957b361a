package encryption

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hamodi15-code/SecureTalk/internal/service/encryption"
	"github.com/hamodi15-code/SecureTalk/pkg/response"
)

// Handler exposes the message encryption endpoint
type Handler struct {
	encryptionService *encryption.Service
}

// NewHandler creates a new encryption handler
func NewHandler(encryptionService *encryption.Service) *Handler {
	return &Handler{
		encryptionService: encryptionService,
	}
}

// Request is the action-dispatch body. One endpoint serves both directions
// so clients only configure a single invocation URL.
type Request struct {
	Action           string `json:"action" binding:"required,oneof=encrypt decrypt"`
	ConversationID   string `json:"conversation_id" binding:"required"`
	Message          string `json:"message"`
	EncryptedMessage string `json:"encrypted_message"`
	IV               string `json:"iv"`
}

// Dispatch handles message encryption and decryption
// POST /v1/encryption
func (h *Handler) Dispatch(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		response.BadRequest(c, "Invalid conversation ID")
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalServerError(c, "Invalid user ID")
		return
	}

	switch req.Action {
	case "encrypt":
		if req.Message == "" {
			response.BadRequest(c, "message is required for encrypt")
			return
		}
		result, err := h.encryptionService.Encrypt(c.Request.Context(), userID, conversationID, req.Message)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, result)

	case "decrypt":
		if req.EncryptedMessage == "" || req.IV == "" {
			response.BadRequest(c, "encrypted_message and iv are required for decrypt")
			return
		}
		plaintext, err := h.encryptionService.Decrypt(c.Request.Context(), userID, conversationID, req.EncryptedMessage, req.IV)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, gin.H{"message": plaintext})
	}
}
