package router

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/meshchat-protocol/meshchat/internal/bus"
)

// ErrDraining is returned for sends that arrive after shutdown began.
var ErrDraining = errors.New("router is draining")

// subscriptions refcounts bus channels per local connection. A conversation
// channel stays subscribed while any local connection references it.
type subscriptions struct {
	mu     sync.Mutex
	bus    bus.Bus
	refs   map[string]int
	byConn map[uuid.UUID]map[string]bool
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		refs:   make(map[string]int),
		byConn: make(map[uuid.UUID]map[string]bool),
	}
}

func (s *subscriptions) bindBus(b bus.Bus) {
	s.mu.Lock()
	s.bus = b
	s.mu.Unlock()
}

// add references conversations for a connection, subscribing channels that
// gain their first reference. Re-adding an existing reference is a no-op.
func (s *subscriptions) add(ctx context.Context, connID uuid.UUID, conversationIDs ...string) {
	s.mu.Lock()
	held := s.byConn[connID]
	if held == nil {
		held = make(map[string]bool)
		s.byConn[connID] = held
	}

	var fresh []string
	for _, convID := range conversationIDs {
		if convID == "" || held[convID] {
			continue
		}
		held[convID] = true
		s.refs[convID]++
		if s.refs[convID] == 1 {
			fresh = append(fresh, bus.ConversationChannel(convID))
		}
	}
	b := s.bus
	s.mu.Unlock()

	if b != nil && len(fresh) > 0 {
		// Subscription failures are tolerable: delivery degrades to history.
		_ = b.Subscribe(ctx, fresh...)
	}
}

// release drops every reference held by a connection and unsubscribes
// channels whose refcount reaches zero.
func (s *subscriptions) release(ctx context.Context, connID uuid.UUID) {
	s.mu.Lock()
	held := s.byConn[connID]
	delete(s.byConn, connID)

	var idle []string
	for convID := range held {
		s.refs[convID]--
		if s.refs[convID] <= 0 {
			delete(s.refs, convID)
			idle = append(idle, bus.ConversationChannel(convID))
		}
	}
	b := s.bus
	s.mu.Unlock()

	if b != nil && len(idle) > 0 {
		_ = b.Unsubscribe(ctx, idle...)
	}
}

// channelRefs reports the current refcount for a conversation (test hook).
func (s *subscriptions) channelRefs(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[conversationID]
}
