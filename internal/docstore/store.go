// Package docstore is the document database boundary: keyed documents grouped
// into collections, merge updates, ordered queries, append-only inserts and
// push subscriptions on a single document.
package docstore

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("document not found")

type serverTimestamp struct{}

// ServerTimestamp may be used as a field value in Set, Update or Append; the
// backend replaces it with its own write time.
var ServerTimestamp interface{} = serverTimestamp{}

// Document is a read snapshot of one stored document.
type Document interface {
	ID() string
	DataTo(v interface{}) error
}

// SnapshotFunc receives the current document on subscribe and after every
// change. A nil Document with a nil error means the document does not exist.
// A non-nil error ends the subscription.
type SnapshotFunc func(doc Document, err error)

type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set replaces the whole document, creating it if needed.
	Set(ctx context.Context, collection, id string, data map[string]interface{}) error
	// Update merges data into an existing document and fails with ErrNotFound
	// when there is none.
	Update(ctx context.Context, collection, id string, data map[string]interface{}) error
	// Query returns at most limit documents ordered ascending by orderBy.
	// Documents without the orderBy field are not returned.
	Query(ctx context.Context, collection, orderBy string, limit int) ([]Document, error)
	// QueryAll returns every document in the store's natural order.
	QueryAll(ctx context.Context, collection string) ([]Document, error)
	// Append inserts a document under a generated id.
	Append(ctx context.Context, collection string, data map[string]interface{}) (string, error)
	Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (*Subscription, error)
	Close(ctx context.Context) error
}

// Subscription is a cancellable handle on a push stream.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSubscription(parent context.Context) (context.Context, *Subscription) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &Subscription{cancel: cancel, done: make(chan struct{})}
}

// Close stops delivery and waits until no callback is running. It must not be
// called from inside the callback.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed once delivery has stopped, whether by Close, by the parent
// context or by a stream error.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func resolveServerTimestamps(data map[string]interface{}, now interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}
