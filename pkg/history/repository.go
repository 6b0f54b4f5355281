package history

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/choraleia/opengpt/pkg/event"
	"github.com/choraleia/opengpt/pkg/models"
	"github.com/choraleia/opengpt/pkg/utils"
	"github.com/pkg/errors"
)

// Repository is the owner-scoped entry point for chat history. It validates
// input, resolves titles, stamps time and translates store failures into
// the package's error taxonomy. It never retries.
type Repository struct {
	store   Store
	now     func() time.Time
	logger  *slog.Logger
	emitter *event.Emitter
}

// NewRepository creates a repository over store.
func NewRepository(store Store) *Repository {
	return &Repository{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: utils.GetLogger(),
	}
}

// SetClock replaces the time source.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// SetEmitter publishes chat.upserted / chat.deleted notifications on e.
func (r *Repository) SetEmitter(e *event.Emitter) {
	r.emitter = e
}

// List returns all chats of ownerID, most recently updated first.
func (r *Repository) List(ctx context.Context, ownerID string) ([]models.Chat, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	chats, err := r.store.List(ctx, ownerID)
	if err != nil {
		r.logger.Error("list chats failed", "owner", ownerID, "error", err)
		return nil, internal(err, "list chats")
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	return chats, nil
}

// Get returns one chat of ownerID.
func (r *Repository) Get(ctx context.Context, ownerID, chatID string) (*models.Chat, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, errors.Wrap(ErrValidation, "chat id is required")
	}
	chat, err := r.store.Get(ctx, ownerID, chatID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		r.logger.Error("get chat failed", "owner", ownerID, "chat", chatID, "error", err)
		return nil, internal(err, "get chat "+chatID)
	}
	return chat, nil
}

// Upsert creates or fully replaces a chat. An empty title is derived from
// the messages.
func (r *Repository) Upsert(ctx context.Context, ownerID, chatID, title string, messages []models.Message) (*models.Chat, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, errors.Wrap(ErrValidation, "chatId is required")
	}
	if err := validateMessages(messages); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}

	// The derived title uses the same rule as historycache: a chat opening
	// with an assistant turn stays "New Chat" instead of taking that turn's
	// text, so a server save never retitles what the client shows.
	chat, created, err := r.store.Upsert(ctx, UpsertParams{
		OwnerID:  ownerID,
		ChatID:   chatID,
		Title:    ResolveTitle(title, messages),
		Messages: messages,
		Now:      r.now(),
	})
	if err != nil {
		r.logger.Error("upsert chat failed", "owner", ownerID, "chat", chatID, "error", err)
		return nil, internal(err, "upsert chat "+chatID)
	}

	r.logger.Debug("chat saved", "owner", ownerID, "chat", chatID, "created", created, "messages", len(messages))
	r.emitter.Emit(event.ChatUpsertedEvent{OwnerID: ownerID, ChatID: chatID, Title: chat.Title, Created: created})
	return chat, nil
}

// Delete removes a chat of ownerID.
func (r *Repository) Delete(ctx context.Context, ownerID, chatID string) error {
	if ownerID == "" {
		return ErrUnauthorized
	}
	if strings.TrimSpace(chatID) == "" {
		return errors.Wrap(ErrValidation, "chatId is required")
	}
	if err := r.store.Delete(ctx, ownerID, chatID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		r.logger.Error("delete chat failed", "owner", ownerID, "chat", chatID, "error", err)
		return internal(err, "delete chat "+chatID)
	}
	r.emitter.Emit(event.ChatDeletedEvent{OwnerID: ownerID, ChatID: chatID})
	return nil
}

func validateMessages(messages []models.Message) error {
	for i, m := range messages {
		if m.ID == "" {
			return errors.Wrapf(ErrValidation, "message %d: id is required", i)
		}
		switch m.Role {
		case models.RoleUser, models.RoleAssistant:
		default:
			return errors.Wrapf(ErrValidation, "message %d: invalid role %q", i, m.Role)
		}
	}
	return nil
}
