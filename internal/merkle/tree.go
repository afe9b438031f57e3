// tree.go - Sparse Merkle tree construction, proof generation, and verification.

package merkle

import (
	"crypto/sha256"
	"encoding/hex"

	"flexanon/internal/faults"
)

// TreeDepth is the number of levels below the root, one per bit of the
// SHA-256 output that addresses leaf positions.
const TreeDepth = 256

// emptyLeafTag is the preimage of the sentinel hash for unoccupied positions.
const emptyLeafTag = "EMPTY_LEAF"

// Leaf is a hashed key/value pair. Key and Value are lowercase hex SHA-256
// digests of a semantic identifier and of the canonicalized fact value.
type Leaf struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Proof is an inclusion proof for one leaf, ordered leaf-to-root.
// Path bits are 0 for a left child and 1 for a right child.
type Proof struct {
	Siblings []string `json:"siblings"`
	Path     []int    `json:"path"`
}

// Hash returns the lowercase hex SHA-256 digest of data.
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// EmptyHash returns the sentinel hash for unoccupied tree positions.
func EmptyHash() string {
	return Hash(emptyLeafTag)
}

// LeafHash computes the hash stored at a leaf position: H(key ":" value).
func LeafHash(key, value string) string {
	return Hash(key + ":" + value)
}

// bitPath returns the 256-character binary expansion of SHA-256(key), which
// is the leaf's position in the tree. The key is re-hashed rather than used
// directly so that positions are uniform regardless of the key's encoding.
func bitPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	buf := make([]byte, 0, TreeDepth)
	for _, b := range sum {
		for bit := 7; bit >= 0; bit-- {
			if b>>uint(bit)&1 == 1 {
				buf = append(buf, '1')
			} else {
				buf = append(buf, '0')
			}
		}
	}
	return string(buf)
}

// Tree is a sparse Merkle tree over a set of uniquely-keyed leaves.
//
// Duplicate keys in the input are a contract violation: the last value wins,
// and callers must de-duplicate beforehand. A Tree is immutable once built
// and safe for concurrent reads.
type Tree struct {
	values    map[string]string // leaf key -> leaf value
	paths     map[string]string // leaf key -> 256-bit position
	leafNodes map[string]string // position -> leaf hash
	nodes     map[string]string // internal prefix -> node hash
	root      string
	empty     string
}

// NewTree builds the tree over the given leaves. An empty leaf set yields a
// tree whose root is the empty-position sentinel.
func NewTree(leaves []Leaf) *Tree {
	t := &Tree{
		values:    make(map[string]string, len(leaves)),
		paths:     make(map[string]string, len(leaves)),
		leafNodes: make(map[string]string, len(leaves)),
		nodes:     make(map[string]string),
		empty:     EmptyHash(),
	}
	for _, leaf := range leaves {
		t.values[leaf.Key] = leaf.Value
	}
	t.build()
	return t
}

// build materializes every populated leaf position and its ancestors,
// level by level toward the root. Parents shared by two populated children
// are computed once.
func (t *Tree) build() {
	for key, value := range t.values {
		path := bitPath(key)
		t.paths[key] = path
		t.leafNodes[path] = LeafHash(key, value)
	}

	current := t.leafNodes
	for depth := TreeDepth - 1; depth >= 0; depth-- {
		next := make(map[string]string, len(current))
		for path := range current {
			parent := path[:depth]
			if _, done := next[parent]; done {
				continue
			}
			left := t.childAt(current, parent+"0")
			right := t.childAt(current, parent+"1")
			h := Hash(left + right)
			next[parent] = h
			t.nodes[parent] = h
		}
		current = next
	}

	if root, ok := current[""]; ok {
		t.root = root
	} else {
		t.root = t.empty
	}
}

func (t *Tree) childAt(level map[string]string, path string) string {
	if h, ok := level[path]; ok {
		return h
	}
	return t.empty
}

// Root returns the tree's root hash.
func (t *Tree) Root() string {
	return t.root
}

// Has reports whether a leaf with the given key is present.
func (t *Tree) Has(key string) bool {
	_, ok := t.values[key]
	return ok
}

// Leaves returns the number of populated leaf positions.
func (t *Tree) Leaves() int {
	return len(t.values)
}

// Proof generates the inclusion proof for the leaf with the given key,
// collecting one sibling hash and one path bit per level, leaf first.
func (t *Tree) Proof(key string) (*Proof, error) {
	path, ok := t.paths[key]
	if !ok {
		return nil, faults.Wrap(faults.ErrRecordNotFound, "leaf with key %s not in tree", key)
	}

	proof := &Proof{
		Siblings: make([]string, 0, TreeDepth),
		Path:     make([]int, 0, TreeDepth),
	}
	for i := TreeDepth - 1; i >= 0; i-- {
		sibling := path[:i]
		if path[i] == '1' {
			sibling += "0"
		} else {
			sibling += "1"
		}
		proof.Siblings = append(proof.Siblings, t.nodeAt(sibling))
		proof.Path = append(proof.Path, int(path[i]-'0'))
	}
	return proof, nil
}

// nodeAt resolves any prefix to its hash, falling back to the sentinel for
// prefixes that were never materialized.
func (t *Tree) nodeAt(prefix string) string {
	if len(prefix) == TreeDepth {
		if h, ok := t.leafNodes[prefix]; ok {
			return h
		}
		return t.empty
	}
	if h, ok := t.nodes[prefix]; ok {
		return h
	}
	return t.empty
}

// Verify checks an inclusion proof against a root. It is pure and requires
// no access to the tree that produced the proof: this is the trust boundary
// between the committing party and any third-party verifier.
func Verify(root string, leaf Leaf, proof *Proof) bool {
	if proof == nil || len(proof.Siblings) != len(proof.Path) {
		return false
	}
	current := LeafHash(leaf.Key, leaf.Value)
	for i, sibling := range proof.Siblings {
		if proof.Path[i] == 1 {
			current = Hash(sibling + current)
		} else {
			current = Hash(current + sibling)
		}
	}
	return current == root
}
