package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore opens Firestore through an initialised Firebase app.
func NewFirestoreStore(ctx context.Context, app *firebase.App) (*FirestoreStore, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Close(ctx context.Context) error {
	return s.client.Close()
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapFirestoreError(err)
	}
	if !snap.Exists() {
		return nil, ErrNotFound
	}
	return firestoreDoc{snap: snap}, nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, resolveServerTimestamps(data, firestore.ServerTimestamp))
	return mapFirestoreError(err)
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if len(data) == 0 {
		return nil
	}
	updates := make([]firestore.Update, 0, len(data))
	for k, v := range resolveServerTimestamps(data, firestore.ServerTimestamp) {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	return mapFirestoreError(err)
}

func (s *FirestoreStore) Query(ctx context.Context, collection, orderBy string, limit int) ([]Document, error) {
	q := s.client.Collection(collection).OrderBy(orderBy, firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return collect(q.Documents(ctx))
}

func (s *FirestoreStore) QueryAll(ctx context.Context, collection string) ([]Document, error) {
	return collect(s.client.Collection(collection).Documents(ctx))
}

func (s *FirestoreStore) Append(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, resolveServerTimestamps(data, firestore.ServerTimestamp))
	if err != nil {
		return "", mapFirestoreError(err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (*Subscription, error) {
	subCtx, sub := newSubscription(ctx)
	it := s.client.Collection(collection).Doc(id).Snapshots(subCtx)

	go func() {
		defer close(sub.done)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if subCtx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				fn(nil, fmt.Errorf("snapshot %s/%s: %w", collection, id, err))
				return
			}
			if snap == nil || !snap.Exists() {
				fn(nil, nil)
				continue
			}
			fn(firestoreDoc{snap: snap}, nil)
		}
	}()
	return sub, nil
}

func collect(it *firestore.DocumentIterator) ([]Document, error) {
	defer it.Stop()
	var out []Document
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, mapFirestoreError(err)
		}
		out = append(out, firestoreDoc{snap: snap})
	}
}

func mapFirestoreError(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

type firestoreDoc struct {
	snap *firestore.DocumentSnapshot
}

func (d firestoreDoc) ID() string { return d.snap.Ref.ID }

func (d firestoreDoc) DataTo(v interface{}) error { return d.snap.DataTo(v) }
