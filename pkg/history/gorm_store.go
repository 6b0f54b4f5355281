package history

import (
	"context"
	"errors"

	"github.com/choraleia/opengpt/pkg/db"
	"github.com/choraleia/opengpt/pkg/models"
	"gorm.io/gorm"
)

// GormStore keeps chats in a SQL database (sqlite, mysql or postgres).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over an already migrated connection.
func NewGormStore(gdb *gorm.DB) *GormStore {
	return &GormStore{db: gdb}
}

func (s *GormStore) List(ctx context.Context, ownerID string) ([]models.Chat, error) {
	var records []db.Chat
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	chats := make([]models.Chat, len(records))
	for i := range records {
		chats[i] = records[i].ToModel()
	}
	return chats, nil
}

func (s *GormStore) Get(ctx context.Context, ownerID, chatID string) (*models.Chat, error) {
	var record db.Chat
	if err := s.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, ownerID).
		Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	chat := record.ToModel()
	return &chat, nil
}

// Upsert runs find-then-write in one transaction. A chat id that exists
// under another owner fails on the primary key and is never overwritten.
func (s *GormStore) Upsert(ctx context.Context, p UpsertParams) (*models.Chat, bool, error) {
	var (
		record  db.Chat
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("chat_id = ? AND user_id = ?", p.ChatID, p.OwnerID).Take(&record).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			record = db.Chat{
				ChatID:    p.ChatID,
				UserID:    p.OwnerID,
				Title:     p.Title,
				Messages:  db.MessageList(p.Messages),
				CreatedAt: p.Now,
				UpdatedAt: p.Now,
			}
			created = true
			return tx.Create(&record).Error
		case err != nil:
			return err
		}

		if err := tx.Model(&db.Chat{}).
			Where("chat_id = ? AND user_id = ?", p.ChatID, p.OwnerID).
			Updates(map[string]interface{}{
				"title":      p.Title,
				"messages":   db.MessageList(p.Messages),
				"updated_at": p.Now,
			}).Error; err != nil {
			return err
		}
		record.Title = p.Title
		record.Messages = db.MessageList(p.Messages)
		record.UpdatedAt = p.Now
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	chat := record.ToModel()
	return &chat, created, nil
}

func (s *GormStore) Delete(ctx context.Context, ownerID, chatID string) error {
	res := s.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, ownerID).
		Delete(&db.Chat{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
