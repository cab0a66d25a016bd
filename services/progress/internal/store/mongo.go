package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/example/lems/internal/progression"
)

const mongoCollection = "progress_blobs"

type blobDocument struct {
	Key       string    `bson:"_id"`
	Blob      []byte    `bson:"blob"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Mongo keeps one document per storage key, with the key as _id.
type Mongo struct {
	Col *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{Col: db.Collection(mongoCollection)}
}

func (s *Mongo) Load(ctx context.Context, key string) ([]byte, error) {
	var doc blobDocument
	err := s.Col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, progression.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", key, err)
	}
	return doc.Blob, nil
}

func (s *Mongo) Save(ctx context.Context, key string, blob []byte) error {
	doc := blobDocument{Key: key, Blob: blob, UpdatedAt: time.Now().UTC()}
	_, err := s.Col.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo replace %s: %w", key, err)
	}
	return nil
}

func (s *Mongo) Keys(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "_id", Value: 1}}).
		SetProjection(bson.D{bson.E{Key: "_id", Value: 1}})
	cur, err := s.Col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find keys: %w", err)
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var doc blobDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode key: %w", err)
		}
		keys = append(keys, doc.Key)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	return keys, nil
}
