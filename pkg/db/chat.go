// Database models for chat history
package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/choraleia/opengpt/pkg/models"
)

// Chat is one stored conversation. ChatID is globally unique; every query
// also filters by UserID.
type Chat struct {
	ChatID    string      `gorm:"primaryKey;size:64"`
	UserID    string      `gorm:"size:64;not null;index:idx_chats_user_updated,priority:1"`
	Title     string      `gorm:"size:100;default:'New Chat'"`
	Messages  MessageList `gorm:"type:text"`
	CreatedAt time.Time   `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime:false;index:idx_chats_user_updated,priority:2,sort:desc"`
}

func (Chat) TableName() string {
	return "chats"
}

// ToModel converts the record to the API type
func (c *Chat) ToModel() models.Chat {
	msgs := make([]models.Message, len(c.Messages))
	copy(msgs, c.Messages)
	return models.Chat{
		ID:        c.ChatID,
		OwnerID:   c.UserID,
		Title:     c.Title,
		Messages:  msgs,
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

// MessageList stores the ordered message sequence as a JSON document
type MessageList []models.Message

// Scan implements sql.Scanner for MessageList
func (m *MessageList) Scan(value interface{}) error {
	if value == nil {
		*m = MessageList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	if len(data) == 0 {
		*m = MessageList{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// Value implements driver.Valuer for MessageList. It returns a string so the
// column can be text on every dialect.
func (m MessageList) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
