// Package mongodb implements the durable store half of the Dead-Letter
// Queue (C5): a `dlq_entries` collection, grounded on the teacher's
// audit.mongodb.go connection/collection/insert pattern — repurposed here
// from the teacher's (unrelated) permission-tree audit cache to DLQ
// durability, since the core audit log itself lives in Postgres (C4).
package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/access-control/acs-core/internal/domain/dlq"
	"github.com/access-control/acs-core/internal/telemetry"
)

// Connection is a hub which deals with a single mongo client.
type Connection struct {
	URI      string
	Database string
	Logger   telemetry.Logger

	client    *mongo.Client
	Connected bool
}

// Connect dials mongo and pings the primary.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to mongo...")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return err
	}

	c.client = client
	c.Connected = true

	c.Logger.Info("connected to mongo")

	return nil
}

// Collection returns the dlq_entries collection, connecting lazily.
func (c *Connection) Collection(ctx context.Context) (*mongo.Collection, error) {
	if c.client == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.client.Database(c.Database).Collection("dlq_entries"), nil
}

// entryDoc is the BSON shape persisted for a dlq.Entry.
type entryDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Operation  string             `bson:"operation"`
	Payload    []byte             `bson:"payload"`
	Cause      string             `bson:"cause"`
	EnqueuedAt time.Time          `bson:"enqueued_at"`
	Attempts   int                `bson:"attempts"`
	Abandoned  bool               `bson:"abandoned"`
	Resolved   bool               `bson:"resolved"`
}

// Store implements dlq.DurableStore over the dlq_entries collection.
type Store struct {
	conn *Connection
}

// NewStore returns a Store bound to conn.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Insert persists a new dead-letter entry.
func (s *Store) Insert(ctx context.Context, e *dlq.Entry) error {
	coll, err := s.conn.Collection(ctx)
	if err != nil {
		return err
	}

	doc := entryDoc{
		Operation:  e.Operation,
		Payload:    e.Payload,
		Cause:      e.Cause,
		EnqueuedAt: e.EnqueuedAt,
		Attempts:   e.Attempts,
	}

	res, err := coll.InsertOne(ctx, doc)
	if err != nil {
		return err
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		e.ID = oid.Hex()
	}

	return nil
}

// Pending retrieves up to limit unresolved, non-abandoned entries for
// operation, oldest first.
func (s *Store) Pending(ctx context.Context, operation string, limit int) ([]*dlq.Entry, error) {
	coll, err := s.conn.Collection(ctx)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"operation": operation, "resolved": bson.M{"$ne": true}, "abandoned": bson.M{"$ne": true}}

	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "enqueued_at", Value: 1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*dlq.Entry

	for cursor.Next(ctx) {
		var doc entryDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}

		out = append(out, &dlq.Entry{
			ID:         doc.ID.Hex(),
			Operation:  doc.Operation,
			Payload:    doc.Payload,
			Cause:      doc.Cause,
			EnqueuedAt: doc.EnqueuedAt,
			Attempts:   doc.Attempts,
			Abandoned:  doc.Abandoned,
		})
	}

	return out, cursor.Err()
}

// MarkRetried increments the attempt counter and records the latest cause.
func (s *Store) MarkRetried(ctx context.Context, id string, cause error) error {
	coll, err := s.conn.Collection(ctx)
	if err != nil {
		return err
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	update := bson.M{"$inc": bson.M{"attempts": 1}}
	if cause != nil {
		update["$set"] = bson.M{"cause": cause.Error()}
	}

	_, err = coll.UpdateByID(ctx, oid, update)

	return err
}

// MarkResolved flags an entry as successfully redriven.
func (s *Store) MarkResolved(ctx context.Context, id string) error {
	coll, err := s.conn.Collection(ctx)
	if err != nil {
		return err
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"resolved": true}})

	return err
}

// MarkAbandoned flags an entry as having exhausted its redrive attempts.
func (s *Store) MarkAbandoned(ctx context.Context, id string) error {
	coll, err := s.conn.Collection(ctx)
	if err != nil {
		return err
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"abandoned": true}})

	return err
}
