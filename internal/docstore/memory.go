package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uniapp/backend/internal/storage"
)

// MemoryStore keeps documents in process. Values are normalised through JSON
// on write, so readers see the same shapes a snapshot reload would produce.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	listeners   map[docKey]map[*memListener]struct{}
	snapshot    *storage.JSONStore
	now         func() time.Time
}

type memCollection struct {
	order []string
	docs  map[string]map[string]interface{}
}

type docKey struct {
	collection string
	id         string
}

type snapshotEntry struct {
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data"`
}

type MemoryOption func(*MemoryStore)

// WithSnapshot persists every write to the given file and restores it on start.
func WithSnapshot(s *storage.JSONStore) MemoryOption {
	return func(m *MemoryStore) { m.snapshot = s }
}

func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

func NewMemoryStore(opts ...MemoryOption) (*MemoryStore, error) {
	m := &MemoryStore{
		collections: make(map[string]*memCollection),
		listeners:   make(map[docKey]map[*memListener]struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.snapshot != nil {
		var snap map[string][]snapshotEntry
		if _, err := m.snapshot.Load(&snap); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		for name, entries := range snap {
			col := m.collection(name)
			for _, e := range entries {
				col.order = append(col.order, e.ID)
				col.docs[e.ID] = e.Data
			}
		}
	}
	return m, nil
}

func (m *MemoryStore) collection(name string) *memCollection {
	col, ok := m.collections[name]
	if !ok {
		col = &memCollection{docs: make(map[string]map[string]interface{})}
		m.collections[name] = col
	}
	return col
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := col.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &memoryDoc{id: id, data: data}, nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := m.normalize(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.commit(m.collection(collection), collection, id, normalized)
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := m.normalize(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.collections[collection]
	if !ok {
		return ErrNotFound
	}
	current, ok := col.docs[id]
	if !ok {
		return ErrNotFound
	}

	merged := make(map[string]interface{}, len(current)+len(normalized))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range normalized {
		merged[k] = v
	}
	return m.commit(col, collection, id, merged)
}

func (m *MemoryStore) Query(ctx context.Context, collection, orderBy string, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}

	docs := make([]*memoryDoc, 0, len(col.order))
	for _, id := range col.order {
		data := col.docs[id]
		if _, has := data[orderBy]; !has {
			continue
		}
		docs = append(docs, &memoryDoc{id: id, data: data})
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return compareValues(docs[i].data[orderBy], docs[j].data[orderBy]) < 0
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}

	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out, nil
}

func (m *MemoryStore) QueryAll(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	out := make([]Document, 0, len(col.order))
	for _, id := range col.order {
		out = append(out, &memoryDoc{id: id, data: col.docs[id]})
	}
	return out, nil
}

func (m *MemoryStore) Append(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	id := uuid.New().String()
	if err := m.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (*Subscription, error) {
	subCtx, sub := newSubscription(ctx)
	l := &memListener{notify: make(chan struct{}, 1)}
	key := docKey{collection: collection, id: id}

	m.mu.Lock()
	if m.listeners[key] == nil {
		m.listeners[key] = make(map[*memListener]struct{})
	}
	m.listeners[key][l] = struct{}{}
	var current Document
	if col, ok := m.collections[collection]; ok {
		if data, ok := col.docs[id]; ok {
			current = &memoryDoc{id: id, data: data}
		}
	}
	l.offer(current)
	m.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer m.unsubscribe(key, l)
		for {
			select {
			case <-subCtx.Done():
				return
			case <-l.notify:
				fn(l.take(), nil)
			}
		}
	}()
	return sub, nil
}

func (m *MemoryStore) unsubscribe(key docKey, l *memListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners[key], l)
	if len(m.listeners[key]) == 0 {
		delete(m.listeners, key)
	}
}

func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// commit stores data, persists the snapshot and then notifies listeners. A
// failed snapshot write restores the previous document. Callers hold m.mu.
func (m *MemoryStore) commit(col *memCollection, collection, id string, data map[string]interface{}) error {
	prev, existed := col.docs[id]
	if !existed {
		col.order = append(col.order, id)
	}
	col.docs[id] = data

	if err := m.persist(); err != nil {
		if existed {
			col.docs[id] = prev
		} else {
			delete(col.docs, id)
			col.order = col.order[:len(col.order)-1]
		}
		return err
	}

	doc := &memoryDoc{id: id, data: data}
	for l := range m.listeners[docKey{collection: collection, id: id}] {
		l.offer(doc)
	}
	return nil
}

func (m *MemoryStore) persist() error {
	if m.snapshot == nil {
		return nil
	}
	snap := make(map[string][]snapshotEntry, len(m.collections))
	for name, col := range m.collections {
		entries := make([]snapshotEntry, 0, len(col.order))
		for _, docID := range col.order {
			entries = append(entries, snapshotEntry{ID: docID, Data: col.docs[docID]})
		}
		snap[name] = entries
	}
	if err := m.snapshot.Save(snap); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

func (m *MemoryStore) normalize(data map[string]interface{}) (map[string]interface{}, error) {
	resolved := resolveServerTimestamps(data, m.now().UTC())
	b, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := make(map[string]interface{}, len(resolved))
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

type memoryDoc struct {
	id   string
	data map[string]interface{}
}

func (d *memoryDoc) ID() string { return d.id }

func (d *memoryDoc) DataTo(v interface{}) error {
	b, err := json.Marshal(d.data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// memListener keeps only the newest snapshot; a slow subscriber skips
// intermediate states instead of blocking writers.
type memListener struct {
	notify chan struct{}
	mu     sync.Mutex
	latest Document
}

func (l *memListener) offer(doc Document) {
	l.mu.Lock()
	l.latest = doc
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *memListener) take() Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest
}

func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}

func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
