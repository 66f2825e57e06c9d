package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshchat-protocol/meshchat/internal/models"
)

type fakeCounters struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{counts: make(map[string]int)}
}

func (f *fakeCounters) MessageCount(_ context.Context, userID string, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[userID], nil
}

func (f *fakeCounters) IncrMessageCount(_ context.Context, userID string, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[userID]++
	return f.counts[userID], nil
}

func testLimits() Limits {
	return Limits{
		FreeMessages:     50,
		Window:           time.Hour,
		FreeMaxFileBytes: 2 * 1024 * 1024,
	}
}

func TestFreeTierCeiling(t *testing.T) {
	counters := newFakeCounters()
	g := NewGate(counters, testLimits(), zerolog.Nop())
	free := &models.Profile{ID: "alice"}

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if err := g.Admit(ctx, free, models.KindText, 0); err != nil {
			t.Fatalf("send %d denied: %v", i+1, err)
		}
	}

	// The 51st send in the window is denied and is not counted.
	if err := g.Admit(ctx, free, models.KindText, 0); !errors.Is(err, ErrMessageLimit) {
		t.Fatalf("51st send = %v, want ErrMessageLimit", err)
	}
	if got := counters.counts["alice"]; got != 50 {
		t.Errorf("store counter = %d, want 50 (denied attempts never counted)", got)
	}
}

func TestPremiumUnlimitedMessages(t *testing.T) {
	counters := newFakeCounters()
	g := NewGate(counters, testLimits(), zerolog.Nop())
	premium := &models.Profile{ID: "bob", Premium: true}

	ctx := context.Background()
	for i := 0; i < 200; i++ {
		if err := g.Admit(ctx, premium, models.KindText, 0); err != nil {
			t.Fatalf("premium send denied: %v", err)
		}
	}
	if got := counters.counts["bob"]; got != 0 {
		t.Errorf("premium sends should not be counted, got %d", got)
	}
}

func TestFileSizeCeiling(t *testing.T) {
	g := NewGate(newFakeCounters(), testLimits(), zerolog.Nop())
	ctx := context.Background()

	free := &models.Profile{ID: "carol"}
	premium := &models.Profile{ID: "dan", Premium: true}

	tests := []struct {
		name    string
		profile *models.Profile
		size    int64
		wantErr error
	}{
		{"free small file", free, 1024, nil},
		{"free at ceiling", free, 2 * 1024 * 1024, nil},
		{"free over ceiling", free, 2*1024*1024 + 1, ErrFileTooLarge},
		{"premium over free ceiling", premium, 50 * 1024 * 1024, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Admit(ctx, tt.profile, models.KindFile, tt.size)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Admit = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConcurrentAdmitsSerialized(t *testing.T) {
	counters := newFakeCounters()
	limits := testLimits()
	limits.FreeMessages = 1000
	g := NewGate(counters, limits, zerolog.Nop())
	free := &models.Profile{ID: "eve"}

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Admit(context.Background(), free, models.KindText, 0); err != nil {
				t.Errorf("Admit: %v", err)
			}
		}()
	}
	wg.Wait()

	// N admitted concurrent sends from the same user's devices move the
	// counter by exactly N.
	if got := counters.counts["eve"]; got != n {
		t.Errorf("store counter = %d, want %d", got, n)
	}
}

func TestReadThroughAdoptsStoreCount(t *testing.T) {
	counters := newFakeCounters()
	counters.counts["frank"] = 49
	limits := testLimits()
	g := NewGate(counters, limits, zerolog.Nop())
	free := &models.Profile{ID: "frank"}

	ctx := context.Background()
	// 49 already used elsewhere: one admit left.
	if err := g.Admit(ctx, free, models.KindText, 0); err != nil {
		t.Fatalf("50th send denied: %v", err)
	}
	if err := g.Admit(ctx, free, models.KindText, 0); !errors.Is(err, ErrMessageLimit) {
		t.Fatalf("51st send = %v, want ErrMessageLimit", err)
	}
}

func TestStoreFailureDoesNotLockOut(t *testing.T) {
	counters := newFakeCounters()
	counters.err = errors.New("redis down")
	g := NewGate(counters, testLimits(), zerolog.Nop())
	free := &models.Profile{ID: "grace"}

	// Counter store failures degrade to local counting, never denial.
	if err := g.Admit(context.Background(), free, models.KindText, 0); err != nil {
		t.Fatalf("Admit with failing store = %v, want nil", err)
	}
}

func TestZeroWindowClampedToDefault(t *testing.T) {
	limits := testLimits()
	limits.Window = 0
	g := NewGate(newFakeCounters(), limits, zerolog.Nop())

	// A zero window would divide by zero in the bucket arithmetic; the
	// gate clamps it so Admit still works.
	if err := g.Admit(context.Background(), &models.Profile{ID: "iris"}, models.KindText, 0); err != nil {
		t.Fatalf("Admit with zero window = %v, want nil", err)
	}
	if g.limits.Window != defaultWindow {
		t.Errorf("window = %v, want %v", g.limits.Window, defaultWindow)
	}
}

func TestNilCountersRunsLocally(t *testing.T) {
	limits := testLimits()
	limits.FreeMessages = 2
	g := NewGate(nil, limits, zerolog.Nop())
	free := &models.Profile{ID: "henry"}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := g.Admit(ctx, free, models.KindText, 0); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}
	if err := g.Admit(ctx, free, models.KindText, 0); !errors.Is(err, ErrMessageLimit) {
		t.Fatalf("3rd send = %v, want ErrMessageLimit", err)
	}
}
