package history

import (
	"strings"
	"unicode/utf8"

	"github.com/choraleia/opengpt/pkg/models"
)

const (
	titlePreviewRunes = 50
	maxTitleRunes     = 100
)

// DeriveTitle builds a title from the opening user message: its first 50
// characters, with "..." appended when the content was longer. Chats that
// are empty or open with an assistant turn are titled "New Chat".
func DeriveTitle(messages []models.Message) string {
	if len(messages) == 0 || messages[0].Role != models.RoleUser {
		return models.DefaultChatTitle
	}
	content := messages[0].Content
	if content == "" {
		return models.DefaultChatTitle
	}
	if utf8.RuneCountInString(content) <= titlePreviewRunes {
		return content
	}
	return string([]rune(content)[:titlePreviewRunes]) + "..."
}

// ResolveTitle prefers an explicit title and falls back to DeriveTitle.
func ResolveTitle(title string, messages []models.Message) string {
	if strings.TrimSpace(title) != "" {
		return clipTitle(title)
	}
	return clipTitle(DeriveTitle(messages))
}

func clipTitle(title string) string {
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	return string([]rune(title)[:maxTitleRunes])
}
