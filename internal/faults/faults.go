// faults.go - Error taxonomy for the commitment/relay protocol.
//
// Every failure surfaced to a caller carries one of the sentinel kinds below,
// wrapped with context via fmt.Errorf and %w. Kinds are never collapsed into
// a generic failure; handlers dispatch on errors.Is.

package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input (shape, missing field). Local, never retried.
	ErrValidation = errors.New("validation error")

	// ErrAuthentication marks a bad signature, stale timestamp, or an
	// identity/message mismatch. Callers must re-sign, not retry.
	ErrAuthentication = errors.New("authentication error")

	// ErrRateLimit marks a commit attempted too soon after the last accepted
	// commit for the same identity. Retry after the window.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrInsufficientRelayBalance marks relayer-side insolvency. Transport
	// condition, not attributable to the caller; retryable.
	ErrInsufficientRelayBalance = errors.New("insufficient relay balance")

	// ErrLedger marks an oracle read/write failure, including timeouts. The
	// outcome is unknown; callers must re-read the slot before retrying.
	ErrLedger = errors.New("ledger error")

	// ErrRecordNotFound marks an absent ledger slot or share token.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRevoked marks an on-ledger or off-ledger revocation.
	ErrRevoked = errors.New("revoked")

	// ErrVersionMismatch marks a share token bound to a version behind the
	// current on-ledger version. The token is logically expired.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrMalformedRecord marks a ledger record that fails fixed-layout decoding.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrProofVerification marks a Merkle inclusion proof that does not
	// reproduce the committed root.
	ErrProofVerification = errors.New("proof verification failed")
)

// Wrap attaches a formatted message to a sentinel kind.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, kind)...)
}
