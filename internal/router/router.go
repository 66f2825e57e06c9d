// Package router is the coordination core: it decides, for every envelope,
// between local delivery and remote publish, suppresses echoes of its own
// bus traffic, and hands delivered envelopes to the durable store off the
// delivery-critical path.
package router

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/meshchat-protocol/meshchat/internal/bus"
	"github.com/meshchat-protocol/meshchat/internal/metrics"
	"github.com/meshchat-protocol/meshchat/internal/models"
	"github.com/meshchat-protocol/meshchat/internal/store"
)

// Deliverer is the local-delivery surface the router drives.
// Implemented by hub.Registry.
type Deliverer interface {
	Deliver(userID string, payload []byte) int
}

const (
	persistQueueDepth = 512
	persistWorkers    = 2
	persistTimeout    = 5 * time.Second
)

// Router routes envelopes between local sockets and the fan-out bus.
type Router struct {
	nodeID string
	local  Deliverer
	store  store.DataStore // nil disables persistence
	logger zerolog.Logger

	bus  bus.Bus // bound after construction; nil in degraded mode
	seq  atomic.Uint64
	seen *seenCache
	subs *subscriptions

	persistCh chan *models.Envelope
	persistWG sync.WaitGroup
	sendWG    sync.WaitGroup
	draining  atomic.Bool
}

// New creates a router for this node and starts its persistence workers.
// The bus is bound separately because its receive callback is this router.
func New(nodeID string, local Deliverer, ds store.DataStore, logger zerolog.Logger) *Router {
	r := &Router{
		nodeID:    nodeID,
		local:     local,
		store:     ds,
		logger:    logger,
		seen:      newSeenCache(4096),
		subs:      newSubscriptions(),
		persistCh: make(chan *models.Envelope, persistQueueDepth),
	}
	for i := 0; i < persistWorkers; i++ {
		r.persistWG.Add(1)
		go r.persistLoop()
	}
	return r
}

// BindBus attaches the fan-out bus. Until bound the router serves local
// delivery only (degraded fan-out).
func (r *Router) BindBus(b bus.Bus) {
	r.bus = b
	r.subs.bindBus(b)
}

// NodeID returns this process's identity, stamped on every envelope it
// originates.
func (r *Router) NodeID() string {
	return r.nodeID
}

// Send ingests an envelope from a local connection: stamps identity,
// timestamp, and sequence, delivers to every locally connected participant
// (the sender's other devices included, for multi-device sync), and always
// publishes to the bus, because participant placement is unknown to this
// node. Local delivery success is independent of fan-out success.
func (r *Router) Send(ctx context.Context, env *models.Envelope) error {
	// The drain check and the body run under sendWG so Drain cannot close
	// the persistence queue while a send that passed the check is still
	// between delivery and enqueue.
	r.sendWG.Add(1)
	defer r.sendWG.Done()
	if r.draining.Load() {
		return ErrDraining
	}

	env.ID = ulid.Make().String()
	env.Timestamp = time.Now().UnixMicro()
	env.Seq = r.seq.Add(1)
	env.OriginNode = r.nodeID

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	metrics.MessagesRouted.WithLabelValues(env.Kind).Inc()

	for _, participant := range models.Participants(env.ConversationID) {
		r.local.Deliver(participant, payload)
	}

	if r.bus != nil {
		if err := r.bus.Publish(ctx, bus.ConversationChannel(env.ConversationID), payload); err != nil {
			// Degraded fan-out: local recipients were already served and the
			// store will let remote participants recover via history.
			r.logger.Warn().Err(err).
				Str("conversation", env.ConversationID).
				Msg("fan-out degraded, continuing with local delivery")
		}
	}

	r.enqueuePersist(env)
	return nil
}

// HandleBusFrame is the bus receive callback. Frames this node originated
// are dropped (already delivered at ingress); duplicate envelope IDs are
// dropped (the bus is at-least-once); the rest are delivered to locally
// registered participants only and never re-published. Zero local
// recipients is the normal case for a conversation with no members here.
func (r *Router) HandleBusFrame(channel string, payload []byte) {
	var env models.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warn().Err(err).Str("channel", channel).Msg("dropping malformed bus frame")
		return
	}

	if env.OriginNode == r.nodeID {
		metrics.BusReceived.WithLabelValues("echo").Inc()
		return
	}
	if r.seen.remember(env.ID) {
		metrics.BusReceived.WithLabelValues("duplicate").Inc()
		return
	}

	delivered := 0
	for _, participant := range models.Participants(env.ConversationID) {
		delivered += r.local.Deliver(participant, payload)
	}
	if delivered == 0 {
		metrics.BusReceived.WithLabelValues("no_local").Inc()
		return
	}
	metrics.BusReceived.WithLabelValues("delivered").Inc()
}

// BindConn subscribes this node to the conversations the store lists for a
// newly connected user, so bus traffic for them starts flowing here.
func (r *Router) BindConn(ctx context.Context, connID uuid.UUID, userID string) {
	if r.store == nil {
		return
	}
	convs, err := r.store.UserConversations(ctx, userID, 200)
	if err != nil {
		r.logger.Warn().Err(err).Str("user", userID).Msg("subscription warm-up failed")
		return
	}
	channels := make([]string, 0, len(convs))
	for _, conv := range convs {
		channels = append(channels, conv.ID)
	}
	r.subs.add(ctx, connID, channels...)
}

// EnsureSubscribed lazily subscribes the connection's node to a conversation
// the moment a local user sends into it.
func (r *Router) EnsureSubscribed(ctx context.Context, connID uuid.UUID, conversationID string) {
	r.subs.add(ctx, connID, conversationID)
}

// ReleaseConn drops the connection's subscription references, unsubscribing
// from conversations with no remaining local participants. This is an
// optimization: over-subscription is harmless.
func (r *Router) ReleaseConn(ctx context.Context, connID uuid.UUID) {
	r.subs.release(ctx, connID)
}

// enqueuePersist hands the envelope to the async persistence workers.
// Best-effort: a full queue drops the write and the live path moves on.
func (r *Router) enqueuePersist(env *models.Envelope) {
	if r.store == nil {
		return
	}
	select {
	case r.persistCh <- env:
	default:
		metrics.PersistDropped.Inc()
		r.logger.Warn().Str("conversation", env.ConversationID).Msg("persistence queue full, dropping record")
	}
}

func (r *Router) persistLoop() {
	defer r.persistWG.Done()
	for env := range r.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := r.store.PutMessage(ctx, env); err != nil {
			metrics.PersistDropped.Inc()
			r.logger.Warn().Err(err).Str("conversation", env.ConversationID).Msg("message persist failed")
			cancel()
			continue
		}
		conv := &models.Conversation{
			ID:           env.ConversationID,
			Participants: models.Participants(env.ConversationID),
			LastContent:  env.Preview(),
			LastKind:     env.Kind,
			LastTS:       env.Timestamp,
		}
		if err := r.store.UpsertConversationPreview(ctx, conv); err != nil {
			r.logger.Warn().Err(err).Str("conversation", env.ConversationID).Msg("preview upsert failed")
		}
		cancel()
	}
}

// Drain stops accepting new envelopes, lets sends already past the draining
// check finish their enqueue, then lets queued persistence finish within the
// context deadline.
func (r *Router) Drain(ctx context.Context) error {
	if !r.draining.CompareAndSwap(false, true) {
		return nil
	}
	// Sends that raced past the flag still hold sendWG; anything arriving
	// after the flag flips exits on ErrDraining without touching the queue.
	r.sendWG.Wait()
	close(r.persistCh)

	done := make(chan struct{})
	go func() {
		r.persistWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// seenCache is a fixed-size FIFO of recently routed envelope IDs, enough to
// absorb the bus's at-least-once redelivery window.
type seenCache struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newSeenCache(capacity int) *seenCache {
	return &seenCache{
		ids:   make(map[string]struct{}, capacity),
		order: make([]string, capacity),
	}
}

// remember records the ID and reports whether it was already present.
func (c *seenCache) remember(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids[id]; ok {
		return true
	}
	if old := c.order[c.next]; old != "" {
		delete(c.ids, old)
	}
	c.order[c.next] = id
	c.next = (c.next + 1) % len(c.order)
	c.ids[id] = struct{}{}
	return false
}
