package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoCollection holds the entries inside the configured database.
const DefaultMongoCollection = "kv"

type mongoEntry struct {
	Key       string     `bson:"_id"`
	Value     string     `bson:"value"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

// Mongo stores one document per key. SetMany runs in a multi-document
// transaction, so the deployment must be a replica set or sharded cluster.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// OpenMongo connects to uri and prepares the expiry index.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("kv/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("kv/mongo: ping: %w", err)
	}
	coll := client.Database(database).Collection(DefaultMongoCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("kv/mongo: create index: %w", err)
	}
	return &Mongo{client: client, coll: coll, now: time.Now}, nil
}

// Get implements Store. The TTL monitor runs once a minute, so expiry is
// also checked here.
func (m *Mongo) Get(ctx context.Context, key string) (string, bool, error) {
	var doc mongoEntry
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv/mongo: get %s: %w", key, err)
	}
	if doc.ExpiresAt != nil && !m.now().Before(*doc.ExpiresAt) {
		return "", false, nil
	}
	return doc.Value, true, nil
}

// Set implements Store.
func (m *Mongo) Set(ctx context.Context, key, value string) error {
	return m.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL implements Store.
func (m *Mongo) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	doc := mongoEntry{Key: key, Value: value, ExpiresAt: expiresAt(m.now(), ttl)}
	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("kv/mongo: set %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (m *Mongo) Delete(ctx context.Context, key string) error {
	if _, err := m.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("kv/mongo: delete %s: %w", key, err)
	}
	return nil
}

// SetMany implements Store inside one transaction.
func (m *Mongo) SetMany(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := m.now()
	sess, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("kv/mongo: start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, e := range entries {
			doc := mongoEntry{Key: e.Key, Value: e.Value, ExpiresAt: expiresAt(now, e.TTL)}
			if _, err := m.coll.ReplaceOne(sc, bson.M{"_id": e.Key}, doc, options.Replace().SetUpsert(true)); err != nil {
				return nil, fmt.Errorf("set %s: %w", e.Key, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("kv/mongo: set many: %w", err)
	}
	return nil
}

// Close implements Store.
func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}

var _ Store = (*Mongo)(nil)
