// tree.go - Append-only Merkle accumulator of note commitments.
//
// Incremental insertion follows the filled-subtree algorithm: a flat leaf
// slice, one cached node per level for the rightmost filled subtree, and
// precomputed zero hashes for everything to the right. Witness generation
// recomputes sibling nodes on demand, collapsing empty subtrees to their
// zero hash.

package merkle

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"

	"github.com/zorb-labs/zorbcore/internal/field"
)

const (
	// DefaultDepth gives the tree 65536 leaves, the shape the reference
	// circuit is compiled for.
	DefaultDepth = 16

	// RootHistorySize is how many recent roots stay acceptable at
	// submission time, so proofs built moments before an insertion still
	// land.
	RootHistorySize = 32
)

var (
	// ErrTreeFull means the next leaf index would exceed 2^depth. Recovery
	// requires protocol-level tree rotation, not a retry.
	ErrTreeFull = errors.New("commitment tree is at capacity")

	// ErrIndexNotFound reports a witness request for an unoccupied slot.
	ErrIndexNotFound = errors.New("no leaf at the requested index")
)

// Witness is the authentication path for one leaf against a specific root.
// A witness does not go stale here; statements bind the root they were
// built against, and the ledger decides freshness at submission.
type Witness struct {
	Index    uint64
	Siblings []fr.Element
	Root     fr.Element
}

// Tree is the append-only commitment accumulator. It is not safe for
// concurrent mutation; the ledger serializes all writers.
type Tree struct {
	depth   int
	hasher  field.Hasher
	zeros   []fr.Element // zeros[i] = root of an empty subtree of height i
	filled  []fr.Element // rightmost filled subtree per level
	leaves  []fr.Element
	root    fr.Element
	history []fr.Element
}

// NewTree builds an empty tree of the given depth.
func NewTree(h field.Hasher, depth int) *Tree {
	zeros := make([]fr.Element, depth+1)
	for i := 0; i < depth; i++ {
		zeros[i+1] = h.Hash(zeros[i], zeros[i])
	}
	t := &Tree{
		depth:  depth,
		hasher: h,
		zeros:  zeros,
		filled: append([]fr.Element(nil), zeros[:depth]...),
		root:   zeros[depth],
	}
	t.pushRoot(t.root)
	return t
}

// Depth returns the fixed tree depth.
func (t *Tree) Depth() int {
	return t.depth
}

// Size returns the number of occupied leaves.
func (t *Tree) Size() uint64 {
	return uint64(len(t.leaves))
}

// Capacity returns the maximum leaf count, 2^depth.
func (t *Tree) Capacity() uint64 {
	return uint64(1) << uint(t.depth)
}

// Root returns the current accumulator root.
func (t *Tree) Root() fr.Element {
	return t.root
}

// Leaf returns the commitment stored at index.
func (t *Tree) Leaf(index uint64) (fr.Element, error) {
	if index >= t.Size() {
		return fr.Element{}, errors.Wrapf(ErrIndexNotFound, "index %d, size %d", index, t.Size())
	}
	return t.leaves[index], nil
}

// Leaves returns the commitments in insertion order.
func (t *Tree) Leaves() []fr.Element {
	return append([]fr.Element(nil), t.leaves...)
}

// Insert appends a commitment at the next free slot and returns its index.
// The root changes on every insertion.
func (t *Tree) Insert(leaf fr.Element) (uint64, error) {
	index := t.Size()
	if index >= t.Capacity() {
		return 0, errors.Wrapf(ErrTreeFull, "capacity %d", t.Capacity())
	}
	t.leaves = append(t.leaves, leaf)

	cur := leaf
	idx := index
	for level := 0; level < t.depth; level++ {
		if idx%2 == 0 {
			t.filled[level] = cur
			cur = t.hasher.Hash(cur, t.zeros[level])
		} else {
			cur = t.hasher.Hash(t.filled[level], cur)
		}
		idx /= 2
	}
	t.root = cur
	t.pushRoot(cur)
	return index, nil
}

// Witness returns the authentication path for a previously inserted leaf,
// against the current root.
func (t *Tree) Witness(index uint64) (Witness, error) {
	if index >= t.Size() {
		return Witness{}, errors.Wrapf(ErrIndexNotFound, "index %d, size %d", index, t.Size())
	}
	siblings := make([]fr.Element, t.depth)
	for level := 0; level < t.depth; level++ {
		pos := index >> uint(level)
		siblings[level] = t.node(level, pos^1)
	}
	return Witness{Index: index, Siblings: siblings, Root: t.root}, nil
}

// KnownRoot reports whether root is the current root or one of the recent
// roots retained for in-flight proofs.
func (t *Tree) KnownRoot(root fr.Element) bool {
	for i := range t.history {
		if t.history[i].Equal(&root) {
			return true
		}
	}
	return false
}

func (t *Tree) pushRoot(r fr.Element) {
	if len(t.history) == RootHistorySize {
		copy(t.history, t.history[1:])
		t.history[RootHistorySize-1] = r
		return
	}
	t.history = append(t.history, r)
}

// node computes the hash of the subtree of height level at position pos.
func (t *Tree) node(level int, pos uint64) fr.Element {
	if level == 0 {
		if pos < t.Size() {
			return t.leaves[pos]
		}
		return t.zeros[0]
	}
	if pos<<uint(level) >= t.Size() {
		return t.zeros[level]
	}
	return t.hasher.Hash(t.node(level-1, 2*pos), t.node(level-1, 2*pos+1))
}

// VerifyWitness recomputes the path hash-by-hash and compares the result to
// root. The index bits choose left/right at each level.
func VerifyWitness(h field.Hasher, leaf fr.Element, w Witness, root fr.Element) bool {
	cur := leaf
	for level := range w.Siblings {
		if (w.Index>>uint(level))&1 == 0 {
			cur = h.Hash(cur, w.Siblings[level])
		} else {
			cur = h.Hash(w.Siblings[level], cur)
		}
	}
	return cur.Equal(&root)
}
