package history

import (
	"context"
	"time"

	"github.com/choraleia/opengpt/pkg/models"
)

// Store is the persistence boundary of the repository. Every method is
// scoped by owner; a chat owned by someone else is indistinguishable from a
// missing one.
type Store interface {
	// List returns the owner's chats, most recently updated first.
	List(ctx context.Context, ownerID string) ([]models.Chat, error)
	// Get returns ErrNotFound when (ownerID, chatID) matches nothing.
	Get(ctx context.Context, ownerID, chatID string) (*models.Chat, error)
	// Upsert creates the chat with createdAt = now when absent, otherwise
	// replaces title, messages and updatedAt. It reports whether a new
	// record was created.
	Upsert(ctx context.Context, chat UpsertParams) (*models.Chat, bool, error)
	// Delete returns ErrNotFound when nothing matched.
	Delete(ctx context.Context, ownerID, chatID string) error
}

// UpsertParams is a fully resolved write: the title is already derived and
// Now is the timestamp to stamp on the record.
type UpsertParams struct {
	OwnerID  string
	ChatID   string
	Title    string
	Messages []models.Message
	Now      time.Time
}
