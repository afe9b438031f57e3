// ownership.go - Proof that a caller controls the private key behind a claimed identity.
//
// Verification is standard Ed25519 over the exact message bytes, paired with
// a timestamp-freshness check that bounds replay of a captured signature.
// The signed message embeds the claimed wallet address and a prefix of the
// Merkle root so a valid signature cannot be replayed against a different
// identity or payload.

package ownership

import (
	"crypto/ed25519"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

// FreshnessWindow is how far a signature timestamp may drift from the
// verifier's clock, in either direction.
const FreshnessWindow = 5 * time.Minute

// rootPrefixLen is the number of hex characters of the Merkle root that the
// signed message must carry.
const rootPrefixLen = 16

// BuildMessage produces the canonical text an owner signs before a relay
// commit. Timestamp is unix milliseconds, matching the freshness check.
func BuildMessage(walletAddress, rootHex string, timestampMS int64) string {
	prefix := rootHex
	if len(prefix) > rootPrefixLen {
		prefix = prefix[:rootPrefixLen]
	}
	return fmt.Sprintf(
		"FlexAnon Ownership Verification\n\n"+
			"I am the owner of wallet: %s\n\n"+
			"Committing to root: %s\n\n"+
			"Timestamp: %d\n\n"+
			"This signature proves I own this wallet and authorize the commitment.",
		walletAddress, prefix, timestampMS)
}

// Verify runs Ed25519 verification of a base58 signature over the exact
// message bytes. Any mutation of the message, signature, or claimed
// identity flips the result.
func Verify(walletAddress, signature string, message []byte) bool {
	pub, err := base58.Decode(walletAddress)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

// IsFresh accepts a unix-millisecond timestamp iff it lies within the window
// of now. Every caller of Verify must also check freshness.
//
// The comparison stays in int64 milliseconds throughout. Converting the
// delta to a time.Duration would multiply by 1e6 and wrap for timestamps
// far from now, turning an ancient timestamp into an accepted one.
func IsFresh(timestampMS int64, now time.Time, window time.Duration) bool {
	diff := now.UnixMilli() - timestampMS
	if diff < 0 {
		diff = -diff
	}
	// diff stays negative when the subtraction or negation wrapped
	// (timestamp near math.MinInt64); such timestamps are never fresh.
	if diff < 0 {
		return false
	}
	return diff < window.Milliseconds()
}

// BindsPayload reports whether a signed message embeds both the claimed
// wallet address and the committed root's prefix.
func BindsPayload(message, walletAddress, rootHex string) bool {
	if !strings.Contains(message, walletAddress) {
		return false
	}
	prefix := rootHex
	if len(prefix) > rootPrefixLen {
		prefix = prefix[:rootPrefixLen]
	}
	return prefix != "" && strings.Contains(message, prefix)
}
