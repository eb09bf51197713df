package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
)

// StateChannelPrefix is the Redis channel prefix used to relay auth-state
// changes between server instances.
const StateChannelPrefix = "auth:state:"

// State is one auth-state notification. Redirect is where a page showing the
// state should navigate.
type State struct {
	UserID   string `json:"userId,omitempty"`
	SignedIn bool   `json:"signedIn"`
	Redirect string `json:"redirect,omitempty"`
}

func SignedIn(userID string) State {
	return State{UserID: userID, SignedIn: true, Redirect: models.PageServices}
}

func SignedOut(userID string) State {
	return State{UserID: userID, SignedIn: false, Redirect: models.PageIndex}
}

// Broker delivers auth-state changes to subscribers. With Redis configured,
// publications go through Redis pub/sub and Run fans them out locally;
// without it they are fanned out in process.
type Broker struct {
	mu    sync.RWMutex
	subs  map[string]map[*StateSubscription]struct{}
	rdb   *redis.Client
	log   logger.Logger
	ready chan struct{}
	once  sync.Once
}

func NewBroker(rdb *redis.Client, log logger.Logger) *Broker {
	return &Broker{
		subs:  make(map[string]map[*StateSubscription]struct{}),
		rdb:   rdb,
		log:   log,
		ready: make(chan struct{}),
	}
}

// Subscribe delivers initial right away and then every state published for
// userID until the subscription is closed or ctx ends.
func (b *Broker) Subscribe(ctx context.Context, userID string, initial State, fn func(State)) *StateSubscription {
	subCtx, cancel := context.WithCancel(ctx)
	s := &StateSubscription{
		userID: userID,
		notify: make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.offer(initial)

	if userID != "" {
		b.mu.Lock()
		if b.subs[userID] == nil {
			b.subs[userID] = make(map[*StateSubscription]struct{})
		}
		b.subs[userID][s] = struct{}{}
		b.mu.Unlock()
	}

	go func() {
		defer close(s.done)
		defer b.remove(s)
		for {
			select {
			case <-subCtx.Done():
				return
			case <-s.notify:
				fn(s.take())
			}
		}
	}()
	return s
}

func (b *Broker) Publish(ctx context.Context, st State) error {
	if st.UserID == "" {
		return nil
	}
	if b.rdb == nil {
		b.fanOut(st)
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, StateChannelPrefix+st.UserID, data).Err()
}

// Ready is closed once the Redis relay is subscribed. It never closes when
// Redis is not configured.
func (b *Broker) Ready() <-chan struct{} {
	return b.ready
}

// Run relays Redis publications to local subscribers until ctx ends,
// resubscribing with backoff after errors.
func (b *Broker) Run(ctx context.Context) {
	if b.rdb == nil {
		return
	}
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := b.relay(ctx, func() { backoff = time.Second })
		if ctx.Err() != nil {
			return
		}
		b.log.Error("auth-state relay interrupted", err, zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (b *Broker) relay(ctx context.Context, onMessage func()) error {
	pubsub := b.rdb.PSubscribe(ctx, StateChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	b.once.Do(func() { close(b.ready) })
	b.log.Info("auth-state relay subscribed", zap.String("pattern", StateChannelPrefix+"*"))

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		onMessage()

		var st State
		if err := json.Unmarshal([]byte(msg.Payload), &st); err != nil {
			b.log.Warn("dropping malformed auth-state message", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if st.UserID == "" {
			st.UserID = strings.TrimPrefix(msg.Channel, StateChannelPrefix)
		}
		b.fanOut(st)
	}
}

func (b *Broker) fanOut(st State) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[st.UserID] {
		s.offer(st)
	}
}

func (b *Broker) remove(s *StateSubscription) {
	if s.userID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[s.userID], s)
	if len(b.subs[s.userID]) == 0 {
		delete(b.subs, s.userID)
	}
}

// StateSubscription keeps only the newest undelivered state.
type StateSubscription struct {
	userID string
	notify chan struct{}
	mu     sync.Mutex
	latest State
	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops delivery and waits for a running callback to return. It must
// not be called from inside the callback.
func (s *StateSubscription) Close() {
	s.cancel()
	<-s.done
}

func (s *StateSubscription) Done() <-chan struct{} {
	return s.done
}

func (s *StateSubscription) offer(st State) {
	s.mu.Lock()
	s.latest = st
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *StateSubscription) take() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}
