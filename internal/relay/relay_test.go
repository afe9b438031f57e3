package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexanon/internal/commitment"
	"flexanon/internal/faults"
	"flexanon/internal/ledger"
	"flexanon/internal/merkle"
	"flexanon/internal/ownership"
)

type fixture struct {
	oracle      *ledger.FileLedger
	coordinator *Coordinator
	limiter     *MemoryRateLimiter
	relayer     *ownership.Keypair
	owner       *ownership.Keypair
	clock       *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	relayer, err := ownership.GenerateKeypair()
	require.NoError(t, err)
	owner, err := ownership.GenerateKeypair()
	require.NoError(t, err)

	clock := &fakeClock{now: time.UnixMilli(1700000000000)}
	oracle := ledger.NewFileLedger("", zerolog.Nop())
	oracle.SetClock(clock.Now)
	oracle.Fund(relayer.Address(), 100*ledger.SubmissionFee)

	limiter := NewMemoryRateLimiter(DefaultRateLimitWindow)
	limiter.SetClock(clock.Now)

	coordinator := NewCoordinator(oracle, relayer, limiter, DefaultMinBalance, zerolog.Nop())
	coordinator.SetClock(clock.Now)

	return &fixture{
		oracle:      oracle,
		coordinator: coordinator,
		limiter:     limiter,
		relayer:     relayer,
		owner:       owner,
		clock:       clock,
	}
}

func (f *fixture) signedRequest(rootTag string) *Request {
	root := merkle.Hash(rootTag)
	ts := f.clock.Now().UnixMilli()
	message := ownership.BuildMessage(f.owner.Address(), root, ts)
	return &Request{
		Owner:       f.owner.Address(),
		MerkleRoot:  root,
		Metadata:    commitment.Metadata{Chain: "solana", SnapshotTimestamp: 1700000000, PrivacyScore: 40},
		Signature:   f.owner.Sign([]byte(message)),
		Message:     message,
		TimestampMS: ts,
	}
}

func TestCommitHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.coordinator.Commit(ctx, f.signedRequest("root-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), result.Version)
	assert.Equal(t, f.relayer.Address(), result.Relayer)
	assert.NotEmpty(t, result.Receipt.Signature)

	// The record lands under the owner's derived slot with the owner inside
	// the payload, while the relayer paid the fee.
	raw, err := f.oracle.ReadRecord(ctx, result.SlotAddress)
	require.NoError(t, err)
	record, err := commitment.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, f.owner.Address(), record.Owner)

	balance, err := f.oracle.Balance(ctx, f.relayer.Address())
	require.NoError(t, err)
	assert.Equal(t, 99*ledger.SubmissionFee, balance)
}

func TestVersionMonotonicity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coordinator.Commit(ctx, f.signedRequest("root-1"))
	require.NoError(t, err)

	f.clock.Advance(DefaultRateLimitWindow + time.Second)
	second, err := f.coordinator.Commit(ctx, f.signedRequest("root-2"))
	require.NoError(t, err)

	assert.Equal(t, first.Version+1, second.Version, "consecutive commits must differ by exactly 1")
}

func TestAuthenticationRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("stale timestamp", func(t *testing.T) {
		req := f.signedRequest("root-1")
		req.TimestampMS -= (ownership.FreshnessWindow + time.Minute).Milliseconds()
		_, err := f.coordinator.Commit(ctx, req)
		assert.ErrorIs(t, err, faults.ErrAuthentication)
	})

	t.Run("tampered message", func(t *testing.T) {
		req := f.signedRequest("root-1")
		req.Message += " extra"
		_, err := f.coordinator.Commit(ctx, req)
		assert.ErrorIs(t, err, faults.ErrAuthentication)
	})

	t.Run("message bound to another root", func(t *testing.T) {
		req := f.signedRequest("root-1")
		other := merkle.Hash("root-2")
		req.Message = ownership.BuildMessage(f.owner.Address(), other, req.TimestampMS)
		req.Signature = f.owner.Sign([]byte(req.Message))
		_, err := f.coordinator.Commit(ctx, req)
		assert.ErrorIs(t, err, faults.ErrAuthentication)
	})

	t.Run("signature by another key", func(t *testing.T) {
		req := f.signedRequest("root-1")
		intruder, err := ownership.GenerateKeypair()
		require.NoError(t, err)
		req.Signature = intruder.Sign([]byte(req.Message))
		_, err = f.coordinator.Commit(ctx, req)
		assert.ErrorIs(t, err, faults.ErrAuthentication)
	})

	t.Run("malformed root", func(t *testing.T) {
		req := f.signedRequest("root-1")
		req.MerkleRoot = "zzzz"
		_, err := f.coordinator.Commit(ctx, req)
		assert.ErrorIs(t, err, faults.ErrValidation)
	})
}

func TestRateLimiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.Commit(ctx, f.signedRequest("root-1"))
	require.NoError(t, err)

	// Second accepted-path commit inside the window is throttled.
	f.clock.Advance(10 * time.Second)
	_, err = f.coordinator.Commit(ctx, f.signedRequest("root-2"))
	assert.ErrorIs(t, err, faults.ErrRateLimit)

	// After the window it succeeds again.
	f.clock.Advance(DefaultRateLimitWindow)
	result, err := f.coordinator.Commit(ctx, f.signedRequest("root-2"))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), result.Version)
}

func TestRateLimitNotChargedOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A coordinator with an unreachable floor rejects before submitting.
	lowFloor := NewCoordinator(f.oracle, f.relayer, f.limiter, 1000*ledger.SubmissionFee, zerolog.Nop())
	lowFloor.SetClock(f.clock.Now)
	_, err := lowFloor.Commit(ctx, f.signedRequest("root-1"))
	assert.ErrorIs(t, err, faults.ErrInsufficientRelayBalance)

	// The failure above must not have started the owner's window.
	result, err := f.coordinator.Commit(ctx, f.signedRequest("root-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), result.Version)
}

func TestTrackedCountsConfirmedIdentities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, 0, f.limiter.Tracked())

	// A rejected attempt leaves no recorded commit behind.
	lowFloor := NewCoordinator(f.oracle, f.relayer, f.limiter, 1000*ledger.SubmissionFee, zerolog.Nop())
	lowFloor.SetClock(f.clock.Now)
	_, err := lowFloor.Commit(ctx, f.signedRequest("root-1"))
	require.ErrorIs(t, err, faults.ErrInsufficientRelayBalance)
	assert.Equal(t, 0, f.limiter.Tracked())

	// A confirmed commit records the owner's identity.
	_, err = f.coordinator.Commit(ctx, f.signedRequest("root-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.limiter.Tracked())
}

func TestConcurrentSameIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.signedRequest("root-1")

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.coordinator.Commit(ctx, req)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range results {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, faults.ErrRateLimit)
		}
	}
	assert.Equal(t, 1, accepted, "exactly one concurrent request may pass the rate limit")
}

func TestInsufficientBalanceIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	drained := NewCoordinator(f.oracle, f.relayer, f.limiter, 101*ledger.SubmissionFee, zerolog.Nop())
	drained.SetClock(f.clock.Now)

	_, err := drained.Commit(ctx, f.signedRequest("root-1"))
	assert.ErrorIs(t, err, faults.ErrInsufficientRelayBalance)
	assert.NotErrorIs(t, err, faults.ErrRateLimit)

	// Top up and retry without advancing the clock: no window was started.
	f.oracle.Fund(f.relayer.Address(), 10*ledger.SubmissionFee)
	_, err = drained.Commit(ctx, f.signedRequest("root-1"))
	require.NoError(t, err)
}
