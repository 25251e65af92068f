package drop

import (
	"errors"
	"sort"
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

const (
	topicState  = "drop:state"
	topicNotice = "drop:notice"
)

// Store holds the latest State and fans changes out to subscribers.
// It never mutates the state on its own; Replace is the only writer.
//
// Each topic has a single bus handler that dispatches to the live
// subscriptions; cancelling a subscription removes it from that set.
// Handlers run synchronously on the publishing goroutine and must not
// publish from inside the callback.
type Store struct {
	mu    sync.RWMutex
	state State
	bus   evbus.Bus

	subMu   sync.Mutex
	nextSub uint64
	states  map[uint64]func(State)
	notices map[uint64]func(Notice)
}

var ErrNilHandler = errors.New("nil subscription handler")

func NewStore() *Store {
	s := &Store{
		state:   Initial(),
		bus:     evbus.New(),
		states:  make(map[uint64]func(State)),
		notices: make(map[uint64]func(Notice)),
	}
	// Subscribe only fails for non-func handlers.
	_ = s.bus.Subscribe(topicState, s.dispatchState)
	_ = s.bus.Subscribe(topicNotice, s.dispatchNotice)
	return s
}

// Replace overwrites the whole state and notifies subscribers.
func (s *Store) Replace(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.bus.Publish(topicState, next)
}

// Current returns the latest state without blocking on subscribers.
func (s *Store) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Notify publishes a transient notice.
func (s *Store) Notify(n Notice) {
	s.bus.Publish(topicNotice, n)
}

// Subscribe registers fn for every state change. The returned func removes it.
func (s *Store) Subscribe(fn func(State)) (func(), error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.states[id] = fn
	return func() { s.unsubscribe(id) }, nil
}

// SubscribeNotices registers fn for transient notices. The returned func removes it.
func (s *Store) SubscribeNotices(fn func(Notice)) (func(), error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.notices[id] = fn
	return func() { s.unsubscribe(id) }, nil
}

// Subscribers reports how many state and notice subscriptions are live.
func (s *Store) Subscribers() (states, notices int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.states), len(s.notices)
}

func (s *Store) unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.states, id)
	delete(s.notices, id)
}

func (s *Store) dispatchState(st State) {
	for _, fn := range snapshotHandlers(&s.subMu, s.states) {
		fn(st)
	}
}

func (s *Store) dispatchNotice(n Notice) {
	for _, fn := range snapshotHandlers(&s.subMu, s.notices) {
		fn(n)
	}
}

// snapshotHandlers copies the live handlers in subscription order so they can
// run without the lock held.
func snapshotHandlers[F any](mu *sync.Mutex, subs map[uint64]F) []F {
	mu.Lock()
	defer mu.Unlock()
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]F, len(ids))
	for i, id := range ids {
		out[i] = subs[id]
	}
	return out
}
