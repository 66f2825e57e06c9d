package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// fakeSocket records sends and can be told to fail.
type fakeSocket struct {
	id     uuid.UUID
	userID string

	mu     sync.Mutex
	sent   [][]byte
	fail   bool
	closed bool
}

func newFakeSocket(userID string) *fakeSocket {
	return &fakeSocket{id: uuid.New(), userID: userID}
}

func (f *fakeSocket) ID() uuid.UUID  { return f.id }
func (f *fakeSocket) UserID() string { return f.userID }

func (f *fakeSocket) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeSocket) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSocket) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestRegisterAndDeliver(t *testing.T) {
	r := NewRegistry(0)

	phone := newFakeSocket("alice")
	laptop := newFakeSocket("alice")
	if err := r.Register(phone); err != nil {
		t.Fatalf("Register(phone): %v", err)
	}
	if err := r.Register(laptop); err != nil {
		t.Fatalf("Register(laptop): %v", err)
	}

	if got := r.Deliver("alice", []byte("hi")); got != 2 {
		t.Errorf("Deliver = %d, want 2 (multi-device fan-out)", got)
	}
	if phone.sentCount() != 1 || laptop.sentCount() != 1 {
		t.Errorf("each device should receive exactly once: phone=%d laptop=%d",
			phone.sentCount(), laptop.sentCount())
	}
}

func TestDeliverToAbsentUserIsNoop(t *testing.T) {
	r := NewRegistry(0)
	if got := r.Deliver("nobody", []byte("hi")); got != 0 {
		t.Errorf("Deliver to absent user = %d, want 0", got)
	}
}

func TestDeliverEvictsFailedSocket(t *testing.T) {
	r := NewRegistry(0)

	good := newFakeSocket("bob")
	bad := newFakeSocket("bob")
	bad.fail = true
	r.Register(good)
	r.Register(bad)

	// Partial delivery still counts as success.
	if got := r.Deliver("bob", []byte("hi")); got != 1 {
		t.Errorf("Deliver = %d, want 1", got)
	}
	if !bad.closed {
		t.Error("failed socket should be closed")
	}
	if got := len(r.Connections("bob")); got != 1 {
		t.Errorf("Connections after eviction = %d, want 1", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry(0)
	s := newFakeSocket("carol")
	r.Register(s)

	r.Unregister("carol", s.ID())
	r.Unregister("carol", s.ID())
	r.Unregister("never-connected", uuid.New())

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	if got := len(r.Connections("carol")); got != 0 {
		t.Errorf("Connections = %d, want 0", got)
	}
}

func TestRegisterCapacity(t *testing.T) {
	r := NewRegistry(2)
	r.Register(newFakeSocket("u1"))
	r.Register(newFakeSocket("u2"))

	err := r.Register(newFakeSocket("u3"))
	if !errors.Is(err, ErrRegistryFull) {
		t.Fatalf("Register over capacity = %v, want ErrRegistryFull", err)
	}
}

func TestConnectionsReturnsSnapshot(t *testing.T) {
	r := NewRegistry(0)
	s := newFakeSocket("dave")
	r.Register(s)

	snap := r.Connections("dave")
	r.Unregister("dave", s.ID())

	// The earlier snapshot is unaffected by later mutation.
	if len(snap) != 1 {
		t.Errorf("snapshot len = %d, want 1", len(snap))
	}
	if len(r.Connections("dave")) != 0 {
		t.Error("registry should be empty after unregister")
	}
}

func TestConcurrentRegisterDeliverUnregister(t *testing.T) {
	r := NewRegistry(0)

	const users = 16
	const perUser = 4

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("user-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			socks := make([]*fakeSocket, 0, perUser)
			for j := 0; j < perUser; j++ {
				s := newFakeSocket(userID)
				if err := r.Register(s); err != nil {
					t.Errorf("Register: %v", err)
				}
				socks = append(socks, s)
			}
			r.Deliver(userID, []byte("ping"))
			for _, s := range socks {
				r.Unregister(userID, s.ID())
			}
		}()
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len after churn = %d, want 0", r.Len())
	}
}

func TestCloseAll(t *testing.T) {
	r := NewRegistry(0)
	socks := []*fakeSocket{newFakeSocket("a"), newFakeSocket("a"), newFakeSocket("b")}
	for _, s := range socks {
		r.Register(s)
	}

	r.CloseAll()

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	for i, s := range socks {
		if !s.closed {
			t.Errorf("socket %d not closed", i)
		}
	}
}
