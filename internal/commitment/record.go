// record.go - The on-ledger commitment record and its slot addressing.
//
// One record per owner identity, held in a slot derived deterministically
// from the owner's public key under a fixed program namespace. The record
// binds the owner to a Merkle root without revealing any portfolio content.

package commitment

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/mr-tron/base58"

	"flexanon/internal/faults"
)

// ProgramTag is the namespace under which commitment slots are derived.
const ProgramTag = "flexanon.commitment.v1"

// slotSeed is the seed prefix for slot derivation, shared with every client
// that needs to locate an owner's commitment.
const slotSeed = "commitment"

// Metadata travels with the root inside the record. Fields are fixed-layout
// on the wire; see codec.go.
type Metadata struct {
	Chain             string `json:"chain"`
	SnapshotTimestamp int64  `json:"snapshot_timestamp"`
	ExpiresAt         *int64 `json:"expires_at,omitempty"`
	PrivacyScore      uint8  `json:"privacy_score"`
}

// Record is the decoded form of one commitment slot.
//
// Version starts at 1 on first commit and increments by exactly 1 on every
// subsequent commit; it never decreases and is never reused. Timestamp is
// the ledger's confirmation time in unix seconds.
type Record struct {
	Owner      string   `json:"owner"` // base58 Ed25519 public key
	MerkleRoot [32]byte `json:"merkle_root"`
	Version    uint32   `json:"version"`
	Metadata   Metadata `json:"metadata"`
	Timestamp  int64    `json:"timestamp"`
	Revoked    bool     `json:"revoked"`
	Bump       uint8    `json:"bump"`
}

// RootHex returns the record's Merkle root as a lowercase hex string, the
// form used by tree verification.
func (r *Record) RootHex() string {
	return hex.EncodeToString(r.MerkleRoot[:])
}

// RootFromHex parses a 64-character hex root into its fixed-size form.
func RootFromHex(root string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(root)
	if err != nil || len(raw) != 32 {
		return out, faults.Wrap(faults.ErrValidation, "merkle root must be 32 hex-encoded bytes")
	}
	copy(out[:], raw)
	return out, nil
}

// SlotAddress derives the deterministic ledger address of an owner's
// commitment slot: H(seed || ownerPubkey || programTag), base58 encoded.
// Any party can locate a commitment knowing only the owner's public key.
func SlotAddress(owner string) (string, error) {
	pub, err := base58.Decode(owner)
	if err != nil || len(pub) != 32 {
		return "", faults.Wrap(faults.ErrValidation, "owner %q is not a base58 32-byte public key", owner)
	}
	h := sha256.New()
	h.Write([]byte(slotSeed))
	h.Write(pub)
	h.Write([]byte(ProgramTag))
	return base58.Encode(h.Sum(nil)), nil
}
