// Chat history HTTP handlers
package handler

import (
	"errors"
	"net/http"

	"github.com/choraleia/opengpt/pkg/auth"
	"github.com/choraleia/opengpt/pkg/history"
	"github.com/choraleia/opengpt/pkg/models"
	"github.com/gin-gonic/gin"
)

// HistoryHandler exposes the history repository to the signed-in user.
type HistoryHandler struct {
	repo *history.Repository
}

func NewHistoryHandler(repo *history.Repository) *HistoryHandler {
	return &HistoryHandler{repo: repo}
}

// RegisterRoutes registers history routes. r must already be behind
// auth.Middleware.
func (h *HistoryHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/chat/history", h.ListChats)
	r.POST("/chat/history", h.SaveChat)
	r.DELETE("/chat/history", h.DeleteChat)
	r.GET("/chat/history/:id", h.GetChat)
}

// ListChats returns the user's chats, most recent first
// GET /api/chat/history
func (h *HistoryHandler) ListChats(c *gin.Context) {
	chats, err := h.repo.List(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeHistoryError(c, err, "Failed to fetch chats")
		return
	}
	c.JSON(http.StatusOK, models.ChatListResponse{Chats: chats})
}

// SaveChat creates or replaces a chat
// POST /api/chat/history
func (h *HistoryHandler) SaveChat(c *gin.Context) {
	var req models.UpsertChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if req.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Chat ID is required"})
		return
	}

	chat, err := h.repo.Upsert(c.Request.Context(), auth.UserID(c), req.ChatID, req.Title, req.Messages)
	if err != nil {
		writeHistoryError(c, err, "Failed to save chat")
		return
	}
	c.JSON(http.StatusOK, models.ChatResponse{Message: "Chat saved successfully", Chat: chat})
}

// DeleteChat removes a chat
// DELETE /api/chat/history?chatId=xxx
func (h *HistoryHandler) DeleteChat(c *gin.Context) {
	chatID := c.Query("chatId")
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Chat ID is required"})
		return
	}
	if err := h.repo.Delete(c.Request.Context(), auth.UserID(c), chatID); err != nil {
		writeHistoryError(c, err, "Failed to delete chat")
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Message: "Chat deleted successfully"})
}

// GetChat returns one chat
// GET /api/chat/history/:id
func (h *HistoryHandler) GetChat(c *gin.Context) {
	chat, err := h.repo.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		writeHistoryError(c, err, "Failed to fetch chat")
		return
	}
	c.JSON(http.StatusOK, models.ChatResponse{Chat: chat})
}

// writeHistoryError maps repository errors to status codes. Internal
// failures only expose the generic message.
func writeHistoryError(c *gin.Context, err error, internalMsg string) {
	switch {
	case errors.Is(err, history.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
	case errors.Is(err, history.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Chat not found"})
	case errors.Is(err, history.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": internalMsg})
	}
}
