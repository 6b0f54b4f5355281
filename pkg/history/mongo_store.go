package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/choraleia/opengpt/pkg/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const chatsCollection = "chats"

type chatDoc struct {
	ChatID    string       `bson:"chat_id"`
	UserID    string       `bson:"user_id"`
	Title     string       `bson:"title"`
	Messages  []messageDoc `bson:"messages"`
	CreatedAt time.Time    `bson:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

type messageDoc struct {
	ID      string `bson:"id"`
	Role    string `bson:"role"`
	Content string `bson:"content"`
}

func (d *chatDoc) toModel() models.Chat {
	msgs := make([]models.Message, len(d.Messages))
	for i, m := range d.Messages {
		msgs[i] = models.Message{ID: m.ID, Role: m.Role, Content: m.Content}
	}
	return models.Chat{
		ID:        d.ChatID,
		OwnerID:   d.UserID,
		Title:     d.Title,
		Messages:  msgs,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func toMessageDocs(msgs []models.Message) []messageDoc {
	out := make([]messageDoc, len(msgs))
	for i, m := range msgs {
		out[i] = messageDoc{ID: m.ID, Role: m.Role, Content: m.Content}
	}
	return out
}

// MongoStore keeps chats in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// ConnectMongo dials uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// NewMongoStore creates a store over database.chats and ensures its indexes.
func NewMongoStore(ctx context.Context, client *mongo.Client, database string) (*MongoStore, error) {
	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(chatsCollection),
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique chat id index and the owner listing index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create chat indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, ownerID string) ([]models.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"user_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find chats: %w", err)
	}
	var docs []chatDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode chats: %w", err)
	}
	chats := make([]models.Chat, len(docs))
	for i := range docs {
		chats[i] = docs[i].toModel()
	}
	return chats, nil
}

func (s *MongoStore) Get(ctx context.Context, ownerID, chatID string) (*models.Chat, error) {
	var doc chatDoc
	err := s.coll.FindOne(ctx, bson.M{"chat_id": chatID, "user_id": ownerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find chat: %w", err)
	}
	chat := doc.toModel()
	return &chat, nil
}

// Upsert is a single findOneAndUpdate. createdAt is only written on insert.
func (s *MongoStore) Upsert(ctx context.Context, p UpsertParams) (*models.Chat, bool, error) {
	now := p.Now.UTC().Truncate(time.Millisecond)
	filter := bson.M{"chat_id": p.ChatID, "user_id": p.OwnerID}
	update := bson.M{
		"$set": bson.M{
			"title":      p.Title,
			"messages":   toMessageDocs(p.Messages),
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc chatDoc
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("upsert chat: %w", err)
	}
	chat := doc.toModel()
	return &chat, doc.CreatedAt.Equal(now), nil
}

func (s *MongoStore) Delete(ctx context.Context, ownerID, chatID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"chat_id": chatID, "user_id": ownerID})
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
