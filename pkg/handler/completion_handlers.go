// Chat completion HTTP handlers
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/choraleia/opengpt/pkg/completion"
	"github.com/choraleia/opengpt/pkg/models"
	"github.com/gin-gonic/gin"
)

// CompletionHandler streams assistant replies
type CompletionHandler struct {
	service *completion.Service
}

func NewCompletionHandler(service *completion.Service) *CompletionHandler {
	return &CompletionHandler{service: service}
}

// RegisterRoutes registers completion routes
func (h *CompletionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat", h.Chat)
	r.GET("/models", h.ListModels)
}

// ListModels returns the selectable models
// GET /api/models
func (h *CompletionHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": h.service.Models()})
}

// Chat streams a completion as server-sent events: "message" per delta,
// then "done" with the assembled reply, or "error".
// POST /api/chat
func (h *CompletionHandler) Chat(c *gin.Context) {
	var req models.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.service.Resolve(req.Model); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Model is required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	w := c.Writer
	reply, err := h.service.Stream(c.Request.Context(), req, func(chunk models.ChatCompletionChunk) error {
		return writeEvent(w, "message", chunk)
	})
	if err != nil {
		if c.Request.Context().Err() != nil {
			return
		}
		_ = writeEvent(w, "error", gin.H{"error": err.Error()})
		return
	}
	_ = writeEvent(w, "done", models.ChatCompletionDone{Message: *reply})
}

func writeEvent(w gin.ResponseWriter, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
