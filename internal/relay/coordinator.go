// coordinator.go - The relay-commit protocol: validate, throttle, submit, confirm.
//
// The coordinator lets an owner publish a commitment without appearing as
// the transaction signer. The submitted write is signed and paid for by the
// relayer identity; the owner's key appears only inside the record payload.
//
// Each request walks a short state machine:
//
//	Received -> SignatureChecked -> RateLimitChecked -> BalanceChecked
//	         -> Submitted -> Confirmed
//
// with any failed check short-circuiting to Rejected. Steps up to the
// balance check are local and deterministic; submission is the only
// suspension point, and no lock is held across it.

package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"flexanon/internal/commitment"
	"flexanon/internal/faults"
	"flexanon/internal/ledger"
	"flexanon/internal/ownership"
)

// State names the stages of a relay commit request.
type State string

const (
	StateReceived         State = "received"
	StateSignatureChecked State = "signature_checked"
	StateRateLimitChecked State = "rate_limit_checked"
	StateBalanceChecked   State = "balance_checked"
	StateSubmitted        State = "submitted"
	StateConfirmed        State = "confirmed"
	StateRejected         State = "rejected"
)

// DefaultMinBalance is the operational floor below which the relayer stops
// accepting work, keeping it solvent for transaction fees.
const DefaultMinBalance uint64 = 20 * ledger.SubmissionFee

// Request is one relay commit attempt by an owner.
type Request struct {
	Owner       string              `json:"owner"`        // base58 public key
	MerkleRoot  string              `json:"merkle_root"`  // 64-char hex
	Metadata    commitment.Metadata `json:"metadata"`
	Signature   string              `json:"signature"` // base58 Ed25519 over Message
	Message     string              `json:"message"`
	TimestampMS int64               `json:"timestamp"` // unix milliseconds
}

// Result reports a confirmed commit.
type Result struct {
	SlotAddress string          `json:"slot_address"`
	Version     uint32          `json:"version"`
	Relayer     string          `json:"relayer"`
	Receipt     *ledger.Receipt `json:"receipt"`
}

// Coordinator orchestrates relay commits against the ledger oracle.
type Coordinator struct {
	oracle     ledger.Oracle
	relayer    *ownership.Keypair
	limiter    RateLimiter
	minBalance uint64
	now        func() time.Time
	log        zerolog.Logger
}

// NewCoordinator wires a coordinator. limiter may be shared across
// coordinators in multi-instance deployments via a custom implementation.
func NewCoordinator(oracle ledger.Oracle, relayer *ownership.Keypair, limiter RateLimiter, minBalance uint64, log zerolog.Logger) *Coordinator {
	if minBalance == 0 {
		minBalance = DefaultMinBalance
	}
	return &Coordinator{
		oracle:     oracle,
		relayer:    relayer,
		limiter:    limiter,
		minBalance: minBalance,
		now:        time.Now,
		log:        log,
	}
}

// SetClock injects a deterministic time source. Tests only.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Relayer returns the transport identity's address.
func (c *Coordinator) Relayer() string {
	return c.relayer.Address()
}

// Commit runs the full relay protocol for one request. The rate-limit entry
// for the owner is recorded only after ledger confirmation, never on a
// rejected or failed attempt.
func (c *Coordinator) Commit(ctx context.Context, req *Request) (*Result, error) {
	started := c.now()
	state := StateReceived
	log := c.log.With().Str("owner", req.Owner).Logger()

	fail := func(err error) (*Result, error) {
		state = StateRejected
		commitsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		commitDuration.Observe(c.now().Sub(started).Seconds())
		log.Warn().Err(err).Msg("relay commit rejected")
		return nil, err
	}

	// Shape checks first: everything here is a caller bug, not an auth failure.
	root, err := commitment.RootFromHex(req.MerkleRoot)
	if err != nil {
		return fail(err)
	}
	if req.Signature == "" || req.Message == "" {
		return fail(faults.Wrap(faults.ErrValidation, "signature and message are required"))
	}
	slot, err := commitment.SlotAddress(req.Owner)
	if err != nil {
		return fail(err)
	}

	// 1. Ownership proof: freshness, signature, and payload binding.
	if !ownership.IsFresh(req.TimestampMS, c.now(), ownership.FreshnessWindow) {
		return fail(faults.Wrap(faults.ErrAuthentication, "signature timestamp outside freshness window"))
	}
	if !ownership.BindsPayload(req.Message, req.Owner, req.MerkleRoot) {
		return fail(faults.Wrap(faults.ErrAuthentication, "message does not bind the claimed identity and root"))
	}
	if !ownership.Verify(req.Owner, req.Signature, []byte(req.Message)) {
		return fail(faults.Wrap(faults.ErrAuthentication, "signature does not verify for %s", req.Owner))
	}
	state = StateSignatureChecked

	// 2. Per-identity throttle. The hold taken here closes the race between
	// two concurrent requests from the same owner.
	if !c.limiter.TryAccept(req.Owner) {
		return fail(faults.Wrap(faults.ErrRateLimit, "a commit for %s was accepted within the window", req.Owner))
	}
	state = StateRateLimitChecked

	// 3. Relayer solvency. Reported as a relayer-side condition.
	balance, err := c.oracle.Balance(ctx, c.relayer.Address())
	if err != nil {
		c.limiter.Release(req.Owner)
		return fail(faults.Wrap(faults.ErrLedger, "balance query failed: %v", err))
	}
	if balance < c.minBalance {
		c.limiter.Release(req.Owner)
		return fail(faults.Wrap(faults.ErrInsufficientRelayBalance, "relayer balance %d below floor %d", balance, c.minBalance))
	}
	state = StateBalanceChecked

	// 4. Encode and submit, signed by the relayer. No lock is held here; a
	// timeout means unknown outcome and the caller must re-read the slot.
	payload, err := commitment.Encode(&commitment.Record{
		Owner:      req.Owner,
		MerkleRoot: root,
		Metadata:   req.Metadata,
	})
	if err != nil {
		c.limiter.Release(req.Owner)
		return fail(err)
	}
	state = StateSubmitted
	receipt, err := c.oracle.SubmitRecord(ctx, slot, c.relayer.Address(), payload)
	if err != nil {
		c.limiter.Release(req.Owner)
		if errors.Is(err, faults.ErrLedger) {
			return fail(err)
		}
		return fail(faults.Wrap(faults.ErrLedger, "submission failed: %v", err))
	}

	// 5. Read back the confirmed record for the authoritative version.
	raw, err := c.oracle.ReadRecord(ctx, slot)
	if err != nil {
		c.limiter.Release(req.Owner)
		return fail(faults.Wrap(faults.ErrLedger, "confirmed record read failed: %v", err))
	}
	confirmed, err := commitment.Decode(raw)
	if err != nil {
		c.limiter.Release(req.Owner)
		return fail(err)
	}

	c.limiter.Confirm(req.Owner)
	state = StateConfirmed
	commitsTotal.WithLabelValues("confirmed").Inc()
	commitDuration.Observe(c.now().Sub(started).Seconds())
	log.Info().
		Str("slot", slot).
		Uint32("version", confirmed.Version).
		Str("state", string(state)).
		Msg("relay commit confirmed")

	return &Result{
		SlotAddress: slot,
		Version:     confirmed.Version,
		Relayer:     c.relayer.Address(),
		Receipt:     receipt,
	}, nil
}

// outcomeLabel maps an error to its metric label, preserving the taxonomy.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, faults.ErrValidation):
		return "validation"
	case errors.Is(err, faults.ErrAuthentication):
		return "authentication"
	case errors.Is(err, faults.ErrRateLimit):
		return "rate_limited"
	case errors.Is(err, faults.ErrInsufficientRelayBalance):
		return "insufficient_balance"
	case errors.Is(err, faults.ErrLedger):
		return "ledger_error"
	default:
		return "error"
	}
}
