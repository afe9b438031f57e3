// Package merkle implements the sparse Merkle tree commitment scheme used to
// bind an owner to a portfolio snapshot.
//
// Overview:
//   - Fixed depth of 256 levels, one per bit of the SHA-256 output
//   - A leaf's position is the 256-bit decomposition of SHA-256(leaf key), so
//     any of the 2^256 positions may be occupied; unoccupied positions take
//     the fixed sentinel SHA-256("EMPTY_LEAF")
//   - Only populated paths and their ancestors are ever materialized
//   - Inclusion proofs are ordered leaf-to-root and verified statically by
//     Verify, which needs no access to the tree that produced them
//
// All hashes are lowercase hex strings. A parent is SHA-256 of the
// concatenation of its children's hex strings, matching the on-ledger
// commitment format that independent verifiers recompute.
package merkle
