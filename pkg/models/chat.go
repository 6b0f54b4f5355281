// Chat history API types
package models

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultChatTitle is used when no title can be derived.
const DefaultChatTitle = "New Chat"

// Chat is one conversation owned by a single user.
// OwnerID comes from the verified session and is never serialized.
type Chat struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a single turn of a conversation.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Clone returns a deep copy so callers can't mutate shared message slices.
func (c Chat) Clone() Chat {
	out := c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	return out
}

// ========== History API types ==========

// UpsertChatRequest is the body of POST /api/chat/history
type UpsertChatRequest struct {
	ChatID   string    `json:"chatId"`
	Title    string    `json:"title,omitempty"`
	Messages []Message `json:"messages"`
}

// ChatListResponse is returned by GET /api/chat/history
type ChatListResponse struct {
	Chats []Chat `json:"chats"`
}

// ChatResponse wraps a single chat
type ChatResponse struct {
	Message string `json:"message,omitempty"`
	Chat    *Chat  `json:"chat"`
}

// MessageResponse is the generic acknowledgement/error body
type MessageResponse struct {
	Message string `json:"message"`
}

// ========== Completion API types ==========

// ChatCompletionRequest is the body of POST /api/chat
type ChatCompletionRequest struct {
	Messages  []Message `json:"messages"`
	Model     string    `json:"model"`
	WebSearch bool      `json:"webSearch"`
}

// ChatCompletionChunk is streamed to the browser as an SSE "message" event
type ChatCompletionChunk struct {
	MessageID        string `json:"messageId"`
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning,omitempty"`
}

// ChatCompletionDone closes a stream with the assembled assistant message
type ChatCompletionDone struct {
	Message Message `json:"message"`
}
