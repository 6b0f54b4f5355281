package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/choraleia/opengpt/pkg/db"
	"github.com/choraleia/opengpt/pkg/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("user already exists")
)

// UserStore persists accounts. Emails are stored normalised.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ---- SQL ----

type GormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(gdb *gorm.DB) *GormUserStore {
	return &GormUserStore{db: gdb}
}

func (s *GormUserStore) Create(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.User{}).Where("email = ?", u.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailTaken
		}
		record := db.User{
			ID:           u.ID,
			Username:     u.Username,
			Email:        u.Email,
			PasswordHash: u.PasswordHash,
			CreatedAt:    u.CreatedAt,
			UpdatedAt:    u.CreatedAt,
		}
		return tx.Create(&record).Error
	})
}

func (s *GormUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.find(ctx, "email = ?", email)
}

func (s *GormUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.find(ctx, "id = ?", id)
}

func (s *GormUserStore) find(ctx context.Context, query string, arg string) (*models.User, error) {
	var record db.User
	if err := s.db.WithContext(ctx).Where(query, arg).Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u := record.ToModel()
	return &u, nil
}

// ---- MongoDB ----

type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type MongoUserStore struct {
	coll *mongo.Collection
}

// NewMongoUserStore uses database.users and ensures a unique email index.
func NewMongoUserStore(ctx context.Context, client *mongo.Client, database string) (*MongoUserStore, error) {
	coll := client.Database(database).Collection("users")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create user indexes: %w", err)
	}
	return &MongoUserStore{coll: coll}, nil
}

func (s *MongoUserStore) Create(ctx context.Context, u *models.User) error {
	_, err := s.coll.InsertOne(ctx, userDoc{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *MongoUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.find(ctx, bson.M{"email": email})
}

func (s *MongoUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.find(ctx, bson.M{"_id": id})
}

func (s *MongoUserStore) find(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &models.User{
		ID:           doc.ID,
		Username:     doc.Username,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
	}, nil
}
