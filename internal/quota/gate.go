// Package quota enforces per-user send quotas on the hot path. The gate
// holds a cached copy of each user's counter; the external store (Redis,
// window-bucketed keys) stays the source of truth and handles resets by key
// rollover.
package quota

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshchat-protocol/meshchat/internal/metrics"
	"github.com/meshchat-protocol/meshchat/internal/models"
)

// Denial reasons surfaced to the sender.
var (
	ErrMessageLimit = errors.New("message limit reached for the current window")
	ErrFileTooLarge = errors.New("file exceeds the size limit for this tier")
)

// Counters is the external counter store the gate reconciles against.
// Implemented by store.RedisStore.
type Counters interface {
	MessageCount(ctx context.Context, userID string, window time.Duration) (int, error)
	IncrMessageCount(ctx context.Context, userID string, window time.Duration) (int, error)
}

// Limits configures the gate.
type Limits struct {
	FreeMessages        int
	Window              time.Duration
	FreeMaxFileBytes    int64
	PremiumMaxFileBytes int64 // 0 disables the premium ceiling
}

const gateShards = 16

type userState struct {
	mu     sync.Mutex
	count  int
	bucket int64
	loaded bool
}

type gateShard struct {
	mu    sync.Mutex
	users map[string]*userState
}

// Gate admits or denies send attempts before they reach the router.
type Gate struct {
	counters Counters
	limits   Limits
	logger   zerolog.Logger
	shards   [gateShards]*gateShard
}

// defaultWindow guards against a zero or negative quota window, which would
// make the bucket arithmetic divide by zero.
const defaultWindow = 24 * time.Hour

// NewGate creates a quota gate. counters may be nil in single-node
// deployments without Redis; the gate then runs on local state alone.
func NewGate(counters Counters, limits Limits, logger zerolog.Logger) *Gate {
	if limits.Window <= 0 {
		limits.Window = defaultWindow
	}
	g := &Gate{counters: counters, limits: limits, logger: logger}
	for i := range g.shards {
		g.shards[i] = &gateShard{users: make(map[string]*userState)}
	}
	return g
}

func (g *Gate) stateFor(userID string) *userState {
	h := fnv.New32a()
	h.Write([]byte(userID))
	sh := g.shards[h.Sum32()%gateShards]

	sh.mu.Lock()
	st, ok := sh.users[userID]
	if !ok {
		st = &userState{}
		sh.users[userID] = st
	}
	sh.mu.Unlock()
	return st
}

func (g *Gate) bucket(now time.Time) int64 {
	return now.Unix() / int64(g.limits.Window.Seconds())
}

// Admit decides whether the user may send. For admitted text and file
// messages of free users the counter is incremented; denied attempts are
// never counted. Concurrent admits for one user serialize on a per-user
// lock, so N admitted sends raise the counter by exactly N.
func (g *Gate) Admit(ctx context.Context, profile *models.Profile, kind string, fileSize int64) error {
	if kind == models.KindFile {
		if err := g.checkFileSize(profile, fileSize); err != nil {
			metrics.QuotaDenied.WithLabelValues("file_too_large").Inc()
			return err
		}
	}

	// Premium users are not message-counted.
	if profile != nil && profile.Premium {
		return nil
	}
	userID := ""
	if profile != nil {
		userID = profile.ID
	}

	st := g.stateFor(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	bucket := g.bucket(now)
	if !st.loaded || st.bucket != bucket {
		st.bucket = bucket
		st.count = g.readThrough(ctx, userID)
		st.loaded = true
	}

	if st.count >= g.limits.FreeMessages {
		metrics.QuotaDenied.WithLabelValues("message_limit").Inc()
		return ErrMessageLimit
	}

	st.count++
	g.flush(ctx, userID, st)
	return nil
}

// CheckFile enforces the attachment ceiling without touching the message
// counter. Used before minting an upload URL; the quota charge happens when
// the file message itself is admitted.
func (g *Gate) CheckFile(profile *models.Profile, fileSize int64) error {
	if err := g.checkFileSize(profile, fileSize); err != nil {
		metrics.QuotaDenied.WithLabelValues("file_too_large").Inc()
		return err
	}
	return nil
}

// checkFileSize enforces the attachment ceiling for the user's tier.
func (g *Gate) checkFileSize(profile *models.Profile, fileSize int64) error {
	ceiling := g.limits.FreeMaxFileBytes
	if profile != nil && profile.Premium {
		ceiling = g.limits.PremiumMaxFileBytes
	}
	if ceiling > 0 && fileSize > ceiling {
		return ErrFileTooLarge
	}
	return nil
}

// readThrough loads the counter from the external store. A store failure
// falls back to zero: a brief undercount beats locking the user out.
func (g *Gate) readThrough(ctx context.Context, userID string) int {
	if g.counters == nil {
		return 0
	}
	count, err := g.counters.MessageCount(ctx, userID, g.limits.Window)
	if err != nil {
		g.logger.Warn().Err(err).Str("user", userID).Msg("quota read-through failed")
		return 0
	}
	return count
}

// flush pushes the admitted increment to the external store. The local cache
// already advanced, so a flush failure degrades to an undercount in the
// store, never a lock-out.
func (g *Gate) flush(ctx context.Context, userID string, st *userState) {
	if g.counters == nil {
		return
	}
	count, err := g.counters.IncrMessageCount(ctx, userID, g.limits.Window)
	if err != nil {
		g.logger.Warn().Err(err).Str("user", userID).Msg("quota flush failed")
		return
	}
	// Another node may have admitted sends for the same user; adopt the
	// store's view when it is ahead.
	if count > st.count {
		st.count = count
	}
}
