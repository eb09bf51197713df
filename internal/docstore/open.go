package docstore

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"

	"github.com/uniapp/backend/internal/storage"
)

const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
)

type OpenOptions struct {
	Backend string
	// DataDir enables the JSON snapshot for the memory backend.
	DataDir  string
	MongoURI string
	MongoDB  string
	Firebase *firebase.App
}

// Open connects the configured backend.
func Open(ctx context.Context, opts OpenOptions) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		var memOpts []MemoryOption
		if opts.DataDir != "" {
			snap, err := storage.NewJSONStore(opts.DataDir, "docstore.json")
			if err != nil {
				return nil, err
			}
			memOpts = append(memOpts, WithSnapshot(snap))
		}
		s, err := NewMemoryStore(memOpts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendFirestore:
		if opts.Firebase == nil {
			return nil, errors.New("docstore: firestore backend needs a firebase app")
		}
		s, err := NewFirestoreStore(ctx, opts.Firebase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMongo:
		s, err := NewMongoStore(ctx, opts.MongoURI, opts.MongoDB)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("docstore: unknown backend %q", opts.Backend)
}
