// hash.go - The single algebraic hash used throughout the protocol.
//
// Commitments, key derivation, nullifiers, and both accumulator trees all
// hash through the same MiMC sponge, at different arities. The native
// evaluation here matches gnark's in-circuit MiMC gadget on BN254, so the
// proving backend recomputes identical digests.

package field

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hasher maps a sequence of field elements to a single field element.
// Exactly one implementation is live per deployed circuit generation.
type Hasher interface {
	Hash(inputs ...fr.Element) fr.Element
}

type mimcHasher struct{}

// NewMiMC returns the protocol hash. All of H1/H2/H3/H8 are this one
// function applied at the respective arity.
func NewMiMC() Hasher {
	return mimcHasher{}
}

func (mimcHasher) Hash(inputs ...fr.Element) fr.Element {
	h := mimc.NewMiMC()
	for i := range inputs {
		b := inputs[i].Bytes()
		// Write only rejects non-canonical blocks; ours come from Bytes().
		_, _ = h.Write(b[:])
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}
