// Package hub holds the per-process connection registry: the only place that
// knows which sockets are local to this node. State is sharded by user so
// delivery for one user never serializes behind another.
package hub

import (
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/meshchat-protocol/meshchat/internal/metrics"
)

// ErrRegistryFull reports resource exhaustion; callers refuse the connection
// but the process keeps serving.
var ErrRegistryFull = errors.New("connection registry at capacity")

// Socket is the write side of a registered connection. Send must not block:
// implementations enqueue and report an error when the peer is gone or too
// slow, at which point the registry evicts the connection.
type Socket interface {
	ID() uuid.UUID
	UserID() string
	Send(payload []byte) error
	Close()
}

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	users map[string]map[uuid.UUID]Socket
}

// Registry maps user identity to live local sockets. A user may hold several
// connections (multi-device).
type Registry struct {
	shards [shardCount]*shard
	limit  int
	count  atomic.Int64
}

// NewRegistry creates a registry with an optional connection limit; zero
// means unbounded.
func NewRegistry(limit int) *Registry {
	r := &Registry{limit: limit}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[uuid.UUID]Socket)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds a socket under its user. It fails only when the registry is
// at capacity.
func (r *Registry) Register(s Socket) error {
	if r.limit > 0 && r.count.Load() >= int64(r.limit) {
		return ErrRegistryFull
	}

	sh := r.shardFor(s.UserID())
	sh.mu.Lock()
	conns, ok := sh.users[s.UserID()]
	if !ok {
		conns = make(map[uuid.UUID]Socket)
		sh.users[s.UserID()] = conns
	}
	conns[s.ID()] = s
	sh.mu.Unlock()

	r.count.Add(1)
	metrics.ConnectionsActive.Inc()
	return nil
}

// Unregister removes a connection. Removing an already-absent ID is a no-op.
func (r *Registry) Unregister(userID string, connID uuid.UUID) {
	sh := r.shardFor(userID)
	sh.mu.Lock()
	conns, ok := sh.users[userID]
	if ok {
		if _, present := conns[connID]; present {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(sh.users, userID)
			}
			sh.mu.Unlock()
			r.count.Add(-1)
			metrics.ConnectionsActive.Dec()
			return
		}
	}
	sh.mu.Unlock()
}

// Connections returns a snapshot of the user's local sockets. Empty is the
// normal case across a cluster, not an error.
func (r *Registry) Connections(userID string) []Socket {
	sh := r.shardFor(userID)
	sh.mu.RLock()
	conns := sh.users[userID]
	out := make([]Socket, 0, len(conns))
	for _, s := range conns {
		out = append(out, s)
	}
	sh.mu.RUnlock()
	return out
}

// Deliver writes the payload to every local socket for the user and returns
// the number of sockets reached. The socket list is copied out under the
// lock; writes happen after release so slow peers never hold up the shard. A
// failed write evicts that connection but does not fail the call.
func (r *Registry) Deliver(userID string, payload []byte) int {
	delivered := 0
	for _, s := range r.Connections(userID) {
		if err := s.Send(payload); err != nil {
			r.Unregister(userID, s.ID())
			s.Close()
			continue
		}
		delivered++
	}
	if delivered > 0 {
		metrics.LocalDeliveries.Add(float64(delivered))
	}
	return delivered
}

// Len returns the number of registered connections on this node.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// CloseAll closes every registered socket. Used during shutdown after the
// drain grace period.
func (r *Registry) CloseAll() {
	for _, sh := range r.shards {
		sh.mu.Lock()
		for userID, conns := range sh.users {
			for id, s := range conns {
				s.Close()
				delete(conns, id)
				r.count.Add(-1)
				metrics.ConnectionsActive.Dec()
			}
			delete(sh.users, userID)
		}
		sh.mu.Unlock()
	}
}
