package docstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps each collection to a Mongo collection and the document id
// to _id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, mongoURI, dbName string) (*MongoStore, error) {
	opts := options.Client().ApplyURI(mongoURI)
	if opts.TLSConfig != nil {
		opts.TLSConfig.MinVersion = tls.VersionTLS12
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	db := client.Database(dbName)

	// Best-effort indexes for the directory listing and the upload log.
	_, _ = db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "firstName", Value: 1}},
	})
	_, _ = db.Collection("user_uploads").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}},
	})

	return &MongoStore{client: client, db: db}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	raw, err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return mongoDoc{id: id, raw: raw}, nil
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	doc := s.resolve(data)
	doc["_id"] = id
	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": s.resolve(data),
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, collection, orderBy string, limit int) ([]Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: orderBy, Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(collection).Find(ctx, bson.M{orderBy: bson.M{"$exists": true}}, opts)
	if err != nil {
		return nil, err
	}
	return drain(ctx, cur)
}

func (s *MongoStore) QueryAll(ctx context.Context, collection string) ([]Document, error) {
	cur, err := s.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	return drain(ctx, cur)
}

func (s *MongoStore) Append(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	id := primitive.NewObjectID().Hex()
	doc := s.resolve(data)
	doc["_id"] = id
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Subscribe opens a change stream on the document before reading it, so no
// change between the initial read and the stream start is lost.
func (s *MongoStore) Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (*Subscription, error) {
	col := s.db.Collection(collection)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": id}}},
	}
	stream, err := col.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("watch %s/%s: %w", collection, id, err)
	}

	subCtx, sub := newSubscription(ctx)
	go func() {
		defer close(sub.done)
		defer stream.Close(context.Background())

		initial, err := s.Get(subCtx, collection, id)
		switch {
		case errors.Is(err, ErrNotFound):
			fn(nil, nil)
		case err != nil:
			if subCtx.Err() == nil {
				fn(nil, err)
			}
			return
		default:
			fn(initial, nil)
		}

		for stream.Next(subCtx) {
			var ev struct {
				OperationType string   `bson:"operationType"`
				FullDocument  bson.Raw `bson:"fullDocument"`
			}
			if err := stream.Decode(&ev); err != nil {
				fn(nil, err)
				return
			}
			if ev.OperationType == "delete" || len(ev.FullDocument) == 0 {
				fn(nil, nil)
				continue
			}
			fn(mongoDoc{id: id, raw: ev.FullDocument}, nil)
		}
		if err := stream.Err(); err != nil && subCtx.Err() == nil {
			fn(nil, err)
		}
	}()
	return sub, nil
}

func (s *MongoStore) resolve(data map[string]interface{}) bson.M {
	return bson.M(resolveServerTimestamps(data, time.Now().UTC()))
}

func drain(ctx context.Context, cur *mongo.Cursor) ([]Document, error) {
	defer cur.Close(ctx)
	var out []Document
	for cur.Next(ctx) {
		raw := make(bson.Raw, len(cur.Current))
		copy(raw, cur.Current)
		id, _ := raw.Lookup("_id").StringValueOK()
		out = append(out, mongoDoc{id: id, raw: raw})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type mongoDoc struct {
	id  string
	raw bson.Raw
}

func (d mongoDoc) ID() string { return d.id }

func (d mongoDoc) DataTo(v interface{}) error { return bson.Unmarshal(d.raw, v) }
