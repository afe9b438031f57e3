// ratelimit.go - Per-identity throttling of relay commits.
//
// The limiter is process-local by design: its only purpose is abuse
// throttling, not a security invariant, so losing its state on restart is
// acceptable. The TryAccept/Confirm/Release split exists because the entry
// must only be recorded after a confirmed ledger write; a relayer-side
// failure must never penalize the caller.

package relay

import (
	"sync"
	"time"
)

// DefaultRateLimitWindow is the minimum spacing between accepted commits
// from one identity.
const DefaultRateLimitWindow = 60 * time.Second

// RateLimiter throttles commits per identity. Implementations must be safe
// under concurrent requests for the same identity: between TryAccept and
// Confirm the identity is held, so a second concurrent request cannot also
// pass the check.
type RateLimiter interface {
	// TryAccept reserves the identity if it is outside the window and not
	// already held by an in-flight request.
	TryAccept(identity string) bool
	// Confirm records the accepted commit and releases the hold. Call only
	// after ledger confirmation.
	Confirm(identity string)
	// Release drops the hold without recording, for failed attempts.
	Release(identity string)
}

// MemoryRateLimiter is the process-wide map from identity to
// last-accepted-time, with an in-flight hold set closing the window between
// check and update.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	last    map[string]time.Time
	pending map[string]struct{}
	now     func() time.Time
}

// NewMemoryRateLimiter creates a limiter with the given window. A zero
// window disables throttling.
func NewMemoryRateLimiter(window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		window:  window,
		last:    make(map[string]time.Time),
		pending: make(map[string]struct{}),
		now:     time.Now,
	}
}

// SetClock injects a deterministic time source. Tests only.
func (rl *MemoryRateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// TryAccept implements RateLimiter.
func (rl *MemoryRateLimiter) TryAccept(identity string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if _, held := rl.pending[identity]; held {
		return false
	}
	if accepted, ok := rl.last[identity]; ok {
		if rl.now().Sub(accepted) < rl.window {
			return false
		}
	}
	rl.pending[identity] = struct{}{}
	return true
}

// Confirm implements RateLimiter.
func (rl *MemoryRateLimiter) Confirm(identity string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.last[identity] = rl.now()
	delete(rl.pending, identity)
}

// Release implements RateLimiter.
func (rl *MemoryRateLimiter) Release(identity string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.pending, identity)
}

// Tracked returns how many identities currently have a recorded commit.
func (rl *MemoryRateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.last)
}
