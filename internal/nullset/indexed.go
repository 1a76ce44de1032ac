// indexed.go - Indexed Merkle accumulator of spent nullifiers.
//
// Occupied leaves form a sorted singly-linked list embedded in the tree:
// each leaf stores its value plus a link to the next-larger member. The
// zero-valued sentinel at index 0 roots the list. Because the list is
// strictly increasing, absence of a value is provable by exhibiting the one
// leaf whose gap contains it - the low element.
//
// All links are plain integer indices into a flat leaf slice; no pointers.

package nullset

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"

	"github.com/zorb-labs/zorbcore/internal/field"
)

// DefaultDepth matches the commitment tree shape the reference circuit is
// compiled for.
const DefaultDepth = 16

var (
	// ErrAlreadySpent means the low-element search found the value already
	// present. Fatal for that spend; not retryable with the same note.
	ErrAlreadySpent = errors.New("nullifier already recorded")

	// ErrTreeFull means no free leaf slot remains.
	ErrTreeFull = errors.New("nullifier set is at capacity")

	// ErrInvalidValue rejects zero, which is reserved for the sentinel.
	ErrInvalidValue = errors.New("nullifier must be a nonzero field element")
)

// Leaf is one slot of the indexed tree. NextIndex 0 points back at the
// sentinel and marks the list tail: the successor value is infinity.
type Leaf struct {
	Value     fr.Element
	NextValue fr.Element
	NextIndex uint64
}

// Tail reports whether the leaf is the largest member.
func (l Leaf) Tail() bool {
	return l.NextIndex == 0
}

func (l Leaf) hash(h field.Hasher) fr.Element {
	return h.Hash(l.Value, l.NextValue, field.FromUint64(l.NextIndex))
}

// LowElementProof demonstrates, against Root, that a queried value sits in
// the gap above Low: Low.Value < v, and v < Low.NextValue unless Low is the
// tail. It is exactly the witness a proof statement needs to show
// non-membership before an insertion.
type LowElementProof struct {
	Low      Leaf
	LowIndex uint64
	Siblings []fr.Element
	Root     fr.Element
}

// Set is the append-only nullifier accumulator. Like the commitment tree it
// relies on the ledger's single-writer discipline; linked-list splicing does
// not commute.
type Set struct {
	depth  int
	hasher field.Hasher
	zeros  []fr.Element
	leaves []Leaf
	hashes []fr.Element // leaf hashes, index-aligned with leaves
	root   fr.Element
}

// NewSet builds a set containing only the sentinel leaf {0, infinity}.
func NewSet(h field.Hasher, depth int) *Set {
	zeros := make([]fr.Element, depth+1)
	for i := 0; i < depth; i++ {
		zeros[i+1] = h.Hash(zeros[i], zeros[i])
	}
	s := &Set{
		depth:  depth,
		hasher: h,
		zeros:  zeros,
		leaves: []Leaf{{}},
		hashes: []fr.Element{Leaf{}.hash(h)},
	}
	s.root = s.node(depth, 0)
	return s
}

// Depth returns the fixed tree depth.
func (s *Set) Depth() int {
	return s.depth
}

// Size returns the number of recorded nullifiers, excluding the sentinel.
func (s *Set) Size() uint64 {
	return uint64(len(s.leaves)) - 1
}

// Root returns the current accumulator root.
func (s *Set) Root() fr.Element {
	return s.root
}

// Values returns the recorded nullifiers in insertion order. Replaying them
// into a fresh set reproduces the same root.
func (s *Set) Values() []fr.Element {
	out := make([]fr.Element, 0, s.Size())
	for _, l := range s.leaves[1:] {
		out = append(out, l.Value)
	}
	return out
}

// Has reports whether v is recorded, without producing a witness.
func (s *Set) Has(v fr.Element) bool {
	_, err := s.lowFor(v)
	return errors.Is(err, ErrAlreadySpent)
}

// ProveNonMembership returns the low-element witness for v without mutating
// the set. Callers splice only once the associated spend is accepted.
func (s *Set) ProveNonMembership(v fr.Element) (LowElementProof, error) {
	i, err := s.lowFor(v)
	if err != nil {
		return LowElementProof{}, err
	}
	return s.proofFor(i), nil
}

// Insert splices v into the sorted list: the low element's link is rewritten
// to point at a freshly appended leaf, which inherits the old link. Returns
// the pre-mutation low-element proof and the new root.
func (s *Set) Insert(v fr.Element) (LowElementProof, fr.Element, error) {
	i, err := s.lowFor(v)
	if err != nil {
		return LowElementProof{}, fr.Element{}, err
	}
	newIndex := uint64(len(s.leaves))
	if newIndex >= uint64(1)<<uint(s.depth) {
		return LowElementProof{}, fr.Element{}, errors.Wrapf(ErrTreeFull, "capacity %d", uint64(1)<<uint(s.depth))
	}

	proof := s.proofFor(i)

	low := s.leaves[i]
	s.leaves = append(s.leaves, Leaf{Value: v, NextValue: low.NextValue, NextIndex: low.NextIndex})
	s.hashes = append(s.hashes, s.leaves[newIndex].hash(s.hasher))

	s.leaves[i].NextValue = v
	s.leaves[i].NextIndex = newIndex
	s.hashes[i] = s.leaves[i].hash(s.hasher)

	s.root = s.node(s.depth, 0)
	return proof, s.root, nil
}

// lowFor walks the linked list for the leaf whose gap contains v. Every
// member except the sentinel is some leaf's NextValue, so equality along the
// walk is a complete membership check.
func (s *Set) lowFor(v fr.Element) (uint64, error) {
	if v.IsZero() {
		return 0, ErrInvalidValue
	}
	i := uint64(0)
	for {
		l := s.leaves[i]
		if l.Tail() {
			return i, nil
		}
		switch l.NextValue.Cmp(&v) {
		case 0:
			return 0, errors.Wrapf(ErrAlreadySpent, "value %s", v.String())
		case 1:
			return i, nil
		}
		i = l.NextIndex
	}
}

func (s *Set) proofFor(index uint64) LowElementProof {
	siblings := make([]fr.Element, s.depth)
	for level := 0; level < s.depth; level++ {
		pos := index >> uint(level)
		siblings[level] = s.node(level, pos^1)
	}
	return LowElementProof{
		Low:      s.leaves[index],
		LowIndex: index,
		Siblings: siblings,
		Root:     s.root,
	}
}

func (s *Set) node(level int, pos uint64) fr.Element {
	if level == 0 {
		if pos < uint64(len(s.hashes)) {
			return s.hashes[pos]
		}
		return s.zeros[0]
	}
	if pos<<uint(level) >= uint64(len(s.hashes)) {
		return s.zeros[level]
	}
	return s.hasher.Hash(s.node(level-1, 2*pos), s.node(level-1, 2*pos+1))
}

// VerifyLowElement checks a low-element proof against root: the Merkle path
// must open, and v must fall strictly inside the low leaf's gap (the upper
// bound is vacuous at the tail).
func VerifyLowElement(h field.Hasher, p LowElementProof, v fr.Element, root fr.Element) bool {
	if v.IsZero() {
		return false
	}
	if p.Low.Value.Cmp(&v) >= 0 {
		return false
	}
	if !p.Low.Tail() && p.Low.NextValue.Cmp(&v) <= 0 {
		return false
	}
	cur := p.Low.hash(h)
	for level := range p.Siblings {
		if (p.LowIndex>>uint(level))&1 == 0 {
			cur = h.Hash(cur, p.Siblings[level])
		} else {
			cur = h.Hash(p.Siblings[level], cur)
		}
	}
	return cur.Equal(&root)
}
