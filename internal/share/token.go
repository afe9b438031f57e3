// token.go - Share tokens: frozen disclosure decisions bound to one commitment version.

package share

import (
	"crypto/rand"
	"time"

	"flexanon/internal/merkle"
	"flexanon/internal/portfolio"
)

// tokenAlphabet is the character set for share-link token IDs.
const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// TokenIDLength is the length of generated token IDs.
const TokenIDLength = 8

// ProofEntry pairs one revealed leaf with its inclusion proof against the
// committed root. Entries are 1:1 with the token's revealed leaves.
type ProofEntry struct {
	Leaf     merkle.Leaf `json:"leaf"`
	Siblings []string    `json:"siblings"`
	Path     []int       `json:"path"`
}

// Proof returns the entry's proof in verification form.
func (p ProofEntry) Proof() *merkle.Proof {
	return &merkle.Proof{Siblings: p.Siblings, Path: p.Path}
}

// TokenMetadata carries the display context a share viewer needs without
// another ledger round trip.
type TokenMetadata struct {
	Chain       string `json:"chain"`
	MerkleRoot  string `json:"merkle_root"`
	TotalLeaves int    `json:"total_leaves"`
	HiddenCount int    `json:"hidden_count"`
}

// Token is one disclosure decision, created exactly once and never mutated
// except for the Revoked flag, which only the owner may set. A token is
// logically invalidated when the on-ledger version advances past
// CommitmentVersion or when either revocation flag is set; it is never
// deleted.
type Token struct {
	TokenID           string           `json:"token_id"`
	OwnerAddress      string           `json:"owner_address"`
	CommitmentAddress string           `json:"commitment_address"`
	CommitmentVersion uint32           `json:"commitment_version"`
	RevealedLeaves    []portfolio.Leaf `json:"revealed_leaves"`
	ProofData         []ProofEntry     `json:"proof_data"`
	Metadata          TokenMetadata    `json:"metadata"`
	Revoked           bool             `json:"revoked"`
	CreatedAt         time.Time        `json:"created_at"`
}

// View records one resolution of a share link, for the owner's analytics.
type View struct {
	ID        string    `json:"id"`
	TokenID   string    `json:"token_id"`
	ViewerIP  string    `json:"viewer_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	At        time.Time `json:"at"`
}

// newTokenID draws a short random ID from the URL-friendly alphabet.
func newTokenID() string {
	raw := make([]byte, TokenIDLength)
	rand.Read(raw)
	id := make([]byte, TokenIDLength)
	for i, b := range raw {
		id[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(id)
}
