package history

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

// messagesCollection keeps the collection name used by earlier deployments.
const messagesCollection = "messages"

type turnDocument struct {
	ID        bson.ObjectID `bson:"_id"`
	SessionID string        `bson:"sessionId"`
	Role      string        `bson:"role"`
	Content   string        `bson:"content"`
	Timestamp time.Time     `bson:"timestamp"`
}

func (d turnDocument) turn() chat.Turn {
	return chat.Turn{
		ID:        d.ID.Hex(),
		SessionID: d.SessionID,
		Role:      chat.Role(d.Role),
		Content:   d.Content,
		Timestamp: d.Timestamp.UTC(),
	}
}

// MongoStore persists turns as documents of the messages collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	clock      *clock
}

// OpenMongo connects to MongoDB and ensures the session index exists.
func OpenMongo(ctx context.Context, cfg config.StoreConfig) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(cfg.MongoDatabase).Collection(messagesCollection),
		// BSON dates carry milliseconds.
		clock: newClock(time.Millisecond),
	}

	_, err = store.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ensure mongodb index: %w", err)
	}

	return store, nil
}

// Append inserts one document.
func (s *MongoStore) Append(ctx context.Context, turn chat.Turn) (chat.Turn, error) {
	if err := validate(turn); err != nil {
		return chat.Turn{}, storageErr("append", err)
	}

	doc := turnDocument{
		ID:        bson.NewObjectID(),
		SessionID: turn.SessionID,
		Role:      string(turn.Role),
		Content:   turn.Content,
		Timestamp: s.clock.next(),
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return chat.Turn{}, storageErr("append", err)
	}
	return doc.turn(), nil
}

// ListBySession finds the session's documents sorted by timestamp, then _id.
func (s *MongoStore) ListBySession(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	cursor, err := s.collection.Find(ctx, sessionFilter(sessionID),
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, storageErr("list", err)
	}

	var docs []turnDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storageErr("list", err)
	}

	turns := make([]chat.Turn, 0, len(docs))
	for _, doc := range docs {
		turns = append(turns, doc.turn())
	}
	return turns, nil
}

// sessionFilter matches the session. The unscoped log also covers documents written
// before turns carried a sessionId at all.
func sessionFilter(sessionID string) bson.D {
	if sessionID == "" {
		return bson.D{{Key: "sessionId", Value: bson.D{{Key: "$in", Value: bson.A{"", nil}}}}}
	}
	return bson.D{{Key: "sessionId", Value: sessionID}}
}

// Ping checks the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	return storageErr("ping", s.client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
