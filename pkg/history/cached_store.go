package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/choraleia/opengpt/pkg/models"
	"github.com/choraleia/opengpt/pkg/utils"
	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix  = "opengpt:history:"
	defaultCacheTTL = 5 * time.Minute
)

// fillScript stores a value only while the owner's generation still matches
// the one read before the wrapped store was queried.
//
// KEYS[1] generation key, KEYS[2] value key
// ARGV[1] expected generation, ARGV[2] value, ARGV[3] ttl in milliseconds
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// CachedStore is a Redis read-through cache in front of another Store.
// Writes go to the wrapped store first, then bump the owner's generation and
// drop the owner's cached entries. A fill that started before a write is
// discarded. Redis failures are logged and fall through to the wrapped store.
type CachedStore struct {
	next   Store
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps next with a cache on rdb.
func NewCachedStore(next Store, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: utils.GetLogger(),
	}
}

// NewRedisClient builds a client and checks connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func listKey(ownerID string) string {
	return cacheKeyPrefix + ownerID + ":list"
}

func chatKey(ownerID, chatID string) string {
	return cacheKeyPrefix + ownerID + ":chat:" + chatID
}

func genKey(ownerID string) string {
	return cacheKeyPrefix + ownerID + ":gen"
}

func (s *CachedStore) List(ctx context.Context, ownerID string) ([]models.Chat, error) {
	var chats []models.Chat
	if s.load(ctx, listKey(ownerID), &chats) {
		for i := range chats {
			chats[i].OwnerID = ownerID
		}
		return chats, nil
	}
	gen, fill := s.generation(ctx, ownerID)
	chats, err := s.next.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if fill {
		s.save(ctx, ownerID, gen, listKey(ownerID), chats)
	}
	return chats, nil
}

func (s *CachedStore) Get(ctx context.Context, ownerID, chatID string) (*models.Chat, error) {
	var chat models.Chat
	if s.load(ctx, chatKey(ownerID, chatID), &chat) {
		chat.OwnerID = ownerID
		return &chat, nil
	}
	gen, fill := s.generation(ctx, ownerID)
	got, err := s.next.Get(ctx, ownerID, chatID)
	if err != nil {
		return nil, err
	}
	if fill {
		s.save(ctx, ownerID, gen, chatKey(ownerID, chatID), got)
	}
	return got, nil
}

func (s *CachedStore) Upsert(ctx context.Context, p UpsertParams) (*models.Chat, bool, error) {
	chat, created, err := s.next.Upsert(ctx, p)
	if err != nil {
		return nil, false, err
	}
	s.invalidate(ctx, p.OwnerID, p.ChatID)
	return chat, created, nil
}

func (s *CachedStore) Delete(ctx context.Context, ownerID, chatID string) error {
	err := s.next.Delete(ctx, ownerID, chatID)
	s.invalidate(ctx, ownerID, chatID)
	return err
}

func (s *CachedStore) load(ctx context.Context, key string, dst interface{}) bool {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("history cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		s.logger.Warn("history cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

// generation reads the owner's write counter. ok is false when Redis
// cannot be read, in which case nothing is filled.
func (s *CachedStore) generation(ctx context.Context, ownerID string) (string, bool) {
	gen, err := s.rdb.Get(ctx, genKey(ownerID)).Result()
	switch {
	case err == redis.Nil:
		return "0", true
	case err != nil:
		s.logger.Warn("history cache read failed", "key", genKey(ownerID), "error", err)
		return "", false
	}
	return gen, true
}

func (s *CachedStore) save(ctx context.Context, ownerID, gen, key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	keys := []string{genKey(ownerID), key}
	stored, err := fillScript.Run(ctx, s.rdb, keys, gen, b, strconv.FormatInt(s.ttl.Milliseconds(), 10)).Int()
	if err != nil {
		s.logger.Warn("history cache write failed", "key", key, "error", err)
		return
	}
	if stored == 0 {
		s.logger.Debug("history cache fill skipped after concurrent write", "key", key)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, ownerID, chatID string) {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(ownerID))
		pipe.Del(ctx, listKey(ownerID), chatKey(ownerID, chatID))
		return nil
	})
	if err != nil {
		s.logger.Warn("history cache invalidation failed", "owner", ownerID, "chat", chatID, "error", err)
	}
}
