package event

const (
	ChatUpserted = "chat.upserted"
	ChatDeleted  = "chat.deleted"
	UserSignedUp = "user.signedUp"
)

// ChatUpsertedEvent is emitted after a chat was created or replaced.
type ChatUpsertedEvent struct {
	OwnerID string `json:"-"`
	ChatID  string `json:"chatId"`
	Title   string `json:"title"`
	Created bool   `json:"created"`
}

func (e ChatUpsertedEvent) EventName() string { return ChatUpserted }
func (e ChatUpsertedEvent) Owner() string     { return e.OwnerID }

// ChatDeletedEvent is emitted after a chat was removed.
type ChatDeletedEvent struct {
	OwnerID string `json:"-"`
	ChatID  string `json:"chatId"`
}

func (e ChatDeletedEvent) EventName() string { return ChatDeleted }
func (e ChatDeletedEvent) Owner() string     { return e.OwnerID }

// UserSignedUpEvent is emitted when an account is created.
type UserSignedUpEvent struct {
	UserID string `json:"userId"`
}

func (e UserSignedUpEvent) EventName() string { return UserSignedUp }
func (e UserSignedUpEvent) Owner() string     { return e.UserID }
