// Package historycache keeps an optimistic local mirror of one user's chat
// history. Local mutations are applied synchronously and pushed to the
// remote in the background; the only way to resynchronise is a full fetch.
package historycache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/choraleia/opengpt/pkg/grouping"
	"github.com/choraleia/opengpt/pkg/history"
	"github.com/choraleia/opengpt/pkg/models"
	"github.com/choraleia/opengpt/pkg/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const defaultTaskTimeout = 30 * time.Second

// ErrorHandler receives failures the strict policy rolled back.
type ErrorHandler func(op, chatID string, err error)

// Option configures a Cache.
type Option func(*Cache)

func WithPolicy(p Policy) Option { return func(c *Cache) { c.policy = p } }

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

func WithIDGenerator(gen func() string) Option { return func(c *Cache) { c.newID = gen } }

func WithErrorHandler(fn ErrorHandler) Option { return func(c *Cache) { c.onError = fn } }

func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.logger = l } }

func WithTaskTimeout(d time.Duration) Option { return func(c *Cache) { c.taskTimeout = d } }

type entryMeta struct {
	state EntryState
	rev   uint64
}

type listener struct {
	id uint64
	fn func([]models.Chat)
}

// Cache is the single writer of a user's local chat list. Readers get
// copies. All methods are safe for concurrent use.
type Cache struct {
	remote      Remote
	policy      Policy
	now         func() time.Time
	newID       func() string
	onError     ErrorHandler
	logger      *slog.Logger
	taskTimeout time.Duration

	mu        sync.Mutex
	chats     []models.Chat
	entries   map[string]*entryMeta
	state     LoadState
	listeners []listener
	nextLisID uint64

	tasks sync.WaitGroup
}

// New creates an empty cache in StateUnknown. Call Initialize to load it.
func New(remote Remote, opts ...Option) *Cache {
	c := &Cache{
		remote:      remote,
		policy:      Lenient,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      utils.GetLogger(),
		taskTimeout: defaultTaskTimeout,
		chats:       []models.Chat{},
		entries:     make(map[string]*entryMeta),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize replaces the local list with the remote one.
func (c *Cache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateLoading
	c.mu.Unlock()

	chats, err := c.remote.List(ctx)

	c.mu.Lock()
	if err != nil {
		if c.policy == Strict {
			c.state = StateFailed
			c.mu.Unlock()
			return errors.Wrap(err, "load chat history")
		}
		c.logger.Error("failed to load chat history", "error", err)
		chats = nil
	}
	c.replaceLocked(chats)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Refetch reloads the whole list from the remote.
func (c *Cache) Refetch(ctx context.Context) error {
	return c.Initialize(ctx)
}

// CreateConversation inserts an empty "New Chat" at the head of the list and
// persists it in the background. It returns the chat id, generating one
// when explicitID is empty.
func (c *Cache) CreateConversation(explicitID string) string {
	id := explicitID
	if id == "" {
		id = c.newID()
	}
	now := c.now()
	chat := models.Chat{
		ID:        id,
		Title:     models.DefaultChatTitle,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	prev, rev := c.putHead(chat)
	c.spawn("create", id, rev, prev, func(ctx context.Context) error {
		_, err := c.remote.Upsert(ctx, id, models.DefaultChatTitle, []models.Message{})
		return err
	})
	return id
}

// UpdateConversation replaces the messages of a chat locally, moves it to
// the head and persists it in the background. Unknown ids are inserted.
func (c *Cache) UpdateConversation(id string, messages []models.Message) {
	msgs := make([]models.Message, len(messages))
	copy(msgs, messages)
	title := history.DeriveTitle(msgs)
	now := c.now()

	chat := models.Chat{
		ID:        id,
		Title:     title,
		Messages:  msgs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.mu.Lock()
	if i := c.indexLocked(id); i >= 0 {
		chat.CreatedAt = c.chats[i].CreatedAt
	}
	c.mu.Unlock()

	prev, rev := c.putHead(chat)
	c.spawn("update", id, rev, prev, func(ctx context.Context) error {
		_, err := c.remote.Upsert(ctx, id, title, msgs)
		return err
	})
}

// DeleteConversation removes a chat locally and deletes it remotely in the
// background. A chat the remote no longer has counts as deleted. Any other
// failure reloads the whole list (lenient) or restores the entry (strict).
func (c *Cache) DeleteConversation(id string) {
	c.mu.Lock()
	var prev *models.Chat
	if i := c.indexLocked(id); i >= 0 {
		p := c.chats[i]
		prev = &p
		c.chats = append(c.chats[:i:i], c.chats[i+1:]...)
	}
	rev := c.touchLocked(id)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.taskTimeout)
		defer cancel()

		err := c.remote.Delete(ctx, id)
		if err == nil || errors.Is(err, history.ErrNotFound) {
			c.mu.Lock()
			if m, ok := c.entries[id]; ok && m.rev == rev {
				delete(c.entries, id)
			}
			c.mu.Unlock()
			return
		}

		c.logger.Error("failed to delete chat", "chat", id, "error", err)
		if c.policy == Strict {
			c.rollback("delete", id, rev, prev, err)
			return
		}
		// The task context may already be spent by the failed delete.
		rctx, rcancel := context.WithTimeout(context.Background(), c.taskTimeout)
		defer rcancel()
		c.resync(rctx)
	}()
}

// resync replaces the local list with the remote one. Unlike Initialize it
// keeps the local list when the remote cannot be read.
func (c *Cache) resync(ctx context.Context) {
	chats, err := c.remote.List(ctx)
	if err != nil {
		c.logger.Error("failed to resync chat history", "error", err)
		return
	}

	c.mu.Lock()
	c.replaceLocked(chats)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// GetLocal looks a chat up in the local list only.
func (c *Cache) GetLocal(id string) (models.Chat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.chats[i].Clone(), true
	}
	return models.Chat{}, false
}

// FetchRemote reads a chat from the remote, bypassing the local list.
func (c *Cache) FetchRemote(ctx context.Context, id string) (*models.Chat, error) {
	return c.remote.Get(ctx, id)
}

// Open returns the local copy when present and falls back to the remote.
func (c *Cache) Open(ctx context.Context, id string) (*models.Chat, error) {
	if chat, ok := c.GetLocal(id); ok {
		return &chat, nil
	}
	return c.FetchRemote(ctx, id)
}

// Clear deletes every locally known chat on the remote and empties the
// list. Under the strict policy chats whose delete failed stay listed and
// the first failure is returned.
func (c *Cache) Clear(ctx context.Context) error {
	snap := c.Snapshot()

	var (
		failed   = make(map[string]bool)
		firstErr error
	)
	for _, chat := range snap {
		err := c.remote.Delete(ctx, chat.ID)
		if err == nil || errors.Is(err, history.ErrNotFound) {
			continue
		}
		c.logger.Error("failed to delete chat", "chat", chat.ID, "error", err)
		failed[chat.ID] = true
		if firstErr == nil {
			firstErr = err
		}
	}

	c.mu.Lock()
	kept := []models.Chat{}
	if c.policy == Strict {
		for _, chat := range c.chats {
			if failed[chat.ID] {
				kept = append(kept, chat)
			}
		}
	}
	c.chats = kept
	entries := make(map[string]*entryMeta, len(kept))
	for _, chat := range kept {
		if m, ok := c.entries[chat.ID]; ok {
			entries[chat.ID] = m
		}
	}
	c.entries = entries
	s := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(s)

	if c.policy == Strict && firstErr != nil {
		return errors.Wrapf(firstErr, "clear history: %d of %d deletes failed", len(failed), len(snap))
	}
	return nil
}

// Snapshot returns a copy of the local list, most recently updated first.
func (c *Cache) Snapshot() []models.Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Grouped buckets the current list relative to now.
func (c *Cache) Grouped(now time.Time) grouping.Groups {
	return grouping.Group(c.Snapshot(), now)
}

func (c *Cache) State() LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EntryState reports the sync state of one chat.
func (c *Cache) EntryState(id string) (EntryState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[id]
	if !ok {
		return EntryLoaded, false
	}
	return m.state, true
}

// Wait blocks until every background write started so far has finished.
func (c *Cache) Wait() {
	c.tasks.Wait()
}

// OnChange registers fn to receive a snapshot after every change to the
// list. It returns an unsubscribe function.
func (c *Cache) OnChange(fn func([]models.Chat)) func() {
	c.mu.Lock()
	c.nextLisID++
	id := c.nextLisID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// putHead replaces or inserts chat at the head of the list and returns the
// entry it replaced together with the new revision.
func (c *Cache) putHead(chat models.Chat) (*models.Chat, uint64) {
	c.mu.Lock()
	var prev *models.Chat
	if i := c.indexLocked(chat.ID); i >= 0 {
		p := c.chats[i]
		prev = &p
		c.chats = append(c.chats[:i:i], c.chats[i+1:]...)
	}
	c.chats = append([]models.Chat{chat}, c.chats...)
	rev := c.touchLocked(chat.ID)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return prev, rev
}

// spawn runs a background write and applies the policy to its outcome.
func (c *Cache) spawn(op, id string, rev uint64, prev *models.Chat, write func(ctx context.Context) error) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.taskTimeout)
		defer cancel()

		err := write(ctx)
		if err == nil {
			c.mu.Lock()
			if m, ok := c.entries[id]; ok && m.rev == rev {
				m.state = EntryReconciled
			}
			c.mu.Unlock()
			return
		}

		c.logger.Error("failed to save chat", "op", op, "chat", id, "error", err)
		if c.policy == Strict {
			c.rollback(op, id, rev, prev, err)
		}
	}()
}

// rollback restores prev (or removes the entry when prev is nil) unless the
// entry changed again after revision rev.
func (c *Cache) rollback(op, id string, rev uint64, prev *models.Chat, cause error) {
	c.mu.Lock()
	m, ok := c.entries[id]
	if !ok || m.rev != rev {
		c.mu.Unlock()
		c.logger.Debug("skipping rollback of superseded change", "op", op, "chat", id)
		c.reportError(op, id, cause)
		return
	}
	if i := c.indexLocked(id); i >= 0 {
		c.chats = append(c.chats[:i:i], c.chats[i+1:]...)
	}
	if prev != nil {
		c.insertSortedLocked(*prev)
	}
	m.state = EntryRolledBack
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	c.reportError(op, id, cause)
}

func (c *Cache) reportError(op, id string, err error) {
	if c.onError != nil {
		c.onError(op, id, err)
	}
}

func (c *Cache) touchLocked(id string) uint64 {
	m, ok := c.entries[id]
	if !ok {
		m = &entryMeta{}
		c.entries[id] = m
	}
	m.rev++
	m.state = EntryOptimistic
	return m.rev
}

func (c *Cache) replaceLocked(chats []models.Chat) {
	c.chats = make([]models.Chat, 0, len(chats))
	c.entries = make(map[string]*entryMeta, len(chats))
	for _, chat := range chats {
		c.chats = append(c.chats, chat.Clone())
		c.entries[chat.ID] = &entryMeta{state: EntryLoaded}
	}
	c.state = StateLoaded
}

func (c *Cache) indexLocked(id string) int {
	for i := range c.chats {
		if c.chats[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Cache) insertSortedLocked(chat models.Chat) {
	i := 0
	for i < len(c.chats) && !c.chats[i].UpdatedAt.Before(chat.UpdatedAt) {
		i++
	}
	c.chats = append(c.chats, models.Chat{})
	copy(c.chats[i+1:], c.chats[i:])
	c.chats[i] = chat
}

func (c *Cache) snapshotLocked() []models.Chat {
	out := make([]models.Chat, len(c.chats))
	for i := range c.chats {
		out[i] = c.chats[i].Clone()
	}
	return out
}

func (c *Cache) notify(snap []models.Chat) {
	c.mu.Lock()
	ls := make([]listener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()
	for _, l := range ls {
		l.fn(snap)
	}
}
