package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is the usage journal. A nil *Mongo means the journal is disabled and
// every write is a no-op.
type Mongo struct {
	client   *mongo.Client
	users    *mongo.Collection
	searches *mongo.Collection
}

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    int64              `bson:"user_id"`
	Username  string             `bson:"username,omitempty"`
	FirstSeen time.Time          `bson:"first_seen"`
	LastSeen  time.Time          `bson:"last_seen"`
}

type SearchRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    int64              `bson:"user_id"`
	Query     string             `bson:"query"`
	Kind      string             `bson:"kind"`
	Results   int                `bson:"results"`
	CreatedAt time.Time          `bson:"created_at"`
}

type Stats struct {
	Users    int64
	Searches int64
}

func NewMongo(ctx context.Context, uri string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("MONGODB_URI is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	db := client.Database("moviebot")
	users := db.Collection("users")
	searches := db.Collection("searches")
	_, _ = users.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{bson.E{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)})
	_, _ = searches.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{bson.E{Key: "created_at", Value: -1}}})
	return &Mongo{client: client, users: users, searches: searches}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// TouchUser records that userID interacted with the bot.
func (m *Mongo) TouchUser(ctx context.Context, userID int64, username string) error {
	if m == nil || userID == 0 {
		return nil
	}
	now := time.Now()
	set := bson.M{"last_seen": now}
	if username != "" {
		set["username"] = username
	}
	_, err := m.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"user_id": userID, "first_seen": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *Mongo) RecordSearch(ctx context.Context, userID int64, query string, kind string, results int) error {
	if m == nil {
		return nil
	}
	_, err := m.searches.InsertOne(ctx, SearchRecord{
		UserID:    userID,
		Query:     query,
		Kind:      kind,
		Results:   results,
		CreatedAt: time.Now(),
	})
	return err
}

func (m *Mongo) Stats(ctx context.Context) (Stats, error) {
	if m == nil {
		return Stats{}, errors.New("mongo not configured")
	}
	users, err := m.users.CountDocuments(ctx, bson.M{})
	if err != nil {
		return Stats{}, err
	}
	searches, err := m.searches.EstimatedDocumentCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Users: users, Searches: searches}, nil
}

func (m *Mongo) ListRecent(ctx context.Context, limit int) ([]SearchRecord, error) {
	if m == nil {
		return nil, errors.New("mongo not configured")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	opts := options.Find().SetSort(bson.D{bson.E{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := m.searches.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	items := make([]SearchRecord, 0, limit)
	for cur.Next(ctx) {
		var it SearchRecord
		if err := cur.Decode(&it); err != nil {
			continue
		}
		items = append(items, it)
	}
	return items, cur.Err()
}
