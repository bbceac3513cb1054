// Package mongo provides a Store backed by MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/store"
)

const colObjects = "paysim_objects"

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a MongoDB collection.
type Store struct {
	client *mongo.Client
	col    *mongo.Collection
}

// New wraps a connected client, using database dbName.
func New(client *mongo.Client, dbName string) *Store {
	return &Store{
		client: client,
		col:    client.Database(dbName).Collection(colObjects),
	}
}

// Open connects to uri and uses database dbName.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("paysim/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("paysim/mongo: ping: %w", err)
	}
	return New(client, dbName), nil
}

// Migrate creates the collection indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("paysim/mongo: migrate %s indexes: %w", colObjects, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *Store) Get(ctx context.Context, key string) (object.Object, error) {
	var m objectModel
	err := s.col.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("paysim/mongo: get %s: %w", key, err)
	}
	return object.DecodeKey(key, []byte(m.Value))
}

func (s *Store) Set(ctx context.Context, o object.Object) error {
	raw, err := object.Encode(o)
	if err != nil {
		return err
	}

	m := objectModel{Key: object.KeyOf(o), Kind: string(o.ObjectKind()), Value: string(raw)}
	_, err = s.col.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: m.Key}},
		m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("paysim/mongo: set %s: %w", m.Key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}})
	if err != nil {
		return fmt.Errorf("paysim/mongo: delete %s: %w", key, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Items(ctx context.Context, prefix string) ([]store.Item, error) {
	filter := bson.D{}
	if prefix != "" {
		filter = bson.D{{Key: "_id", Value: bson.Regex{Pattern: "^" + regexp.QuoteMeta(prefix)}}}
	}

	cur, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("paysim/mongo: scan %q: %w", prefix, err)
	}

	var models []objectModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("paysim/mongo: scan %q: %w", prefix, err)
	}

	items := make([]store.Item, 0, len(models))
	for _, m := range models {
		it, err := store.DecodeItem(m.Key, []byte(m.Value))
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.col.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("paysim/mongo: clear: %w", err)
	}
	return nil
}
