package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/legalai/legal-assistant/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

var _ Repository = (*MongoStore)(nil)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
	countersCollection      = "counters"

	messageSeqCounter = "message_seq"
)

type mongoUser struct {
	ID         string    `bson:"_id"`
	CreatedAt  time.Time `bson:"created_at"`
	LastSeenAt time.Time `bson:"last_seen_at"`
}

type mongoConversation struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Title     *string   `bson:"title"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type mongoMessage struct {
	ID             string    `bson:"_id"`
	Seq            int64     `bson:"seq"`
	ConversationID string    `bson:"conversation_id"`
	Role           string    `bson:"role"`
	Content        string    `bson:"content"`
	CreatedAt      time.Time `bson:"created_at"`
}

// MongoStore implements Repository on MongoDB. Message sequence numbers come
// from a counter document; there are no multi-document transactions, so a
// message insert and its conversation touch are two separate writes.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongo connects to uri, selects dbName and ensures indexes exist.
func NewMongo(ctx context.Context, uri, dbName string, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName), logger: logger}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		collection string
		model      mongo.IndexModel
	}{
		{conversationsCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}},
		}},
		{messagesCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "seq", Value: 1}},
		}},
		{messagesCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "seq", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
	}
	for _, idx := range indexes {
		if _, err := s.db.Collection(idx.collection).Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("create index on %s: %w", idx.collection, err)
		}
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var doc mongoUser
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &domain.User{
		ID:         doc.ID,
		CreatedAt:  doc.CreatedAt.UTC(),
		LastSeenAt: doc.LastSeenAt.UTC(),
	}, nil
}

// CreateUser inserts the user; a duplicate key means it already exists.
func (s *MongoStore) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.Collection(usersCollection).InsertOne(ctx, mongoUser{
		ID:         user.ID,
		CreatedAt:  user.CreatedAt,
		LastSeenAt: user.LastSeenAt,
	})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	res, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"last_seen_at": lastSeen}})
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	if res.MatchedCount == 0 {
		s.logger.Warn("UpdateLastSeen matched 0 documents", zap.String("user_id", userID))
	}
	return nil
}

func (s *MongoStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.db.Collection(conversationsCollection).InsertOne(ctx, mongoConversation{
		ID:        conv.ID,
		UserID:    conv.UserID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) GetOwnedConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	var doc mongoConversation
	err := s.db.Collection(conversationsCollection).
		FindOne(ctx, bson.M{"_id": conversationID, "user_id": userID}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	conv := doc.toDomain()
	return &conv, nil
}

func (s *MongoStore) UpdateConversationTitle(ctx context.Context, conversationID, userID, title string, updatedAt time.Time) error {
	res, err := s.db.Collection(conversationsCollection).UpdateOne(ctx,
		bson.M{"_id": conversationID, "user_id": userID},
		bson.M{"$set": bson.M{"title": title, "updated_at": updatedAt}})
	if err != nil {
		return fmt.Errorf("update conversation title: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListConversationsByUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "updated_at", Value: -1},
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: 1},
	})
	cursor, err := s.db.Collection(conversationsCollection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}

	var docs []mongoConversation
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	convs := make([]domain.Conversation, 0, len(docs))
	for _, doc := range docs {
		convs = append(convs, doc.toDomain())
	}
	return convs, nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("insert message: invalid role %q", msg.Role)
	}
	seq, err := s.nextSeq(ctx, messageSeqCounter)
	if err != nil {
		return err
	}

	_, err = s.db.Collection(messagesCollection).InsertOne(ctx, mongoMessage{
		ID:             msg.ID,
		Seq:            seq,
		ConversationID: msg.ConversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.Seq = seq

	// The message is already durable; a failed touch only leaves updated_at stale.
	_, err = s.db.Collection(conversationsCollection).UpdateOne(ctx,
		bson.M{"_id": msg.ConversationID, "updated_at": bson.M{"$lt": msg.CreatedAt}},
		bson.M{"$set": bson.M{"updated_at": msg.CreatedAt}})
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) nextSeq(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return counter.Value, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}})
	cursor, err := s.db.Collection(messagesCollection).Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}

	var docs []mongoMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	msgs := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		msgs = append(msgs, domain.Message{
			ID:             doc.ID,
			ConversationID: doc.ConversationID,
			Role:           domain.Role(doc.Role),
			Content:        doc.Content,
			CreatedAt:      doc.CreatedAt.UTC(),
			Seq:            doc.Seq,
		})
	}
	return msgs, nil
}

func (d mongoConversation) toDomain() domain.Conversation {
	return domain.Conversation{
		ID:        d.ID,
		UserID:    d.UserID,
		Title:     d.Title,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}
