package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HatiCode/gridcast/pkg/features"
)

// MongoSink stores each table as a collection. Swap uses renameCollection
// with dropTarget, which replaces the target in one server-side step.
type MongoSink struct {
	client *mongo.Client
	db     *mongo.Database
	owned  bool
}

// NewMongoSink connects to uri and uses database.
func NewMongoSink(ctx context.Context, uri, database string) (*MongoSink, error) {
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		return nil, err
	}
	s := NewMongoSinkFromClient(client, database)
	s.owned = true
	return s, nil
}

// NewMongoSinkFromClient wraps an existing client. Close leaves it connected.
func NewMongoSinkFromClient(client *mongo.Client, database string) *MongoSink {
	return &MongoSink{client: client, db: client.Database(database)}
}

// ConnectMongo opens a client and verifies it with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.New("mongo uri cannot be empty")
	}
	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

func newMongoFromConfig(ctx context.Context, config map[string]string) (*MongoSink, error) {
	uri := config["uri"]
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	database := config["database"]
	if database == "" {
		database = "data"
	}
	return NewMongoSink(ctx, uri, database)
}

func (m *MongoSink) Name() string { return "mongo" }

func (m *MongoSink) DropIfExists(ctx context.Context, name string) error {
	if err := validTableName(name); err != nil {
		return err
	}
	if err := m.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop collection %q: %w", name, err)
	}
	return nil
}

func (m *MongoSink) Create(ctx context.Context, name string) error {
	if err := validTableName(name); err != nil {
		return err
	}
	names, err := m.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if len(names) > 0 {
		return fmt.Errorf("collection %q already exists", name)
	}
	if err := m.db.CreateCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return nil
}

func (m *MongoSink) InsertBatch(ctx context.Context, name string, recs []features.Record) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]any, len(recs))
	for i := range recs {
		docs[i] = recs[i].Document()
	}
	if _, err := m.db.Collection(name).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert into collection %q: %w", name, err)
	}
	return nil
}

// Swap renames staging over target.
func (m *MongoSink) Swap(ctx context.Context, staging, target string) error {
	cmd := bson.D{
		{Key: "renameCollection", Value: m.db.Name() + "." + staging},
		{Key: "to", Value: m.db.Name() + "." + target},
		{Key: "dropTarget", Value: true},
	}
	if err := m.client.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("failed to swap %q into %q: %w", staging, target, err)
	}
	return nil
}

func (m *MongoSink) Rows(ctx context.Context, name string) ([]map[string]any, error) {
	opts := options.Find().SetProjection(bson.D{{Key: "_id", Value: 0}})
	cur, err := m.db.Collection(name).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %q: %w", name, err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode collection %q: %w", name, err)
	}
	rows := make([]map[string]any, len(docs))
	for i, d := range docs {
		rows[i] = map[string]any(d)
	}
	return rows, nil
}

// Close disconnects the client if the sink opened it.
func (m *MongoSink) Close() error {
	if !m.owned || m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.client.Disconnect(ctx)
	m.client = nil
	return err
}
