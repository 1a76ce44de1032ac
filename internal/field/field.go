// field.go - Scalar field surface shared by the shielded pool core.
//
// Every protocol quantity (amounts, keys, commitments, nullifiers, tree
// nodes, reward rates) lives in the BN254 scalar field. Inputs crossing the
// API boundary arrive as big integers and are rejected unless canonical.

package field

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"
)

// ErrInvalidFieldElement reports an input outside the canonical range [0, q).
// It is returned before any hashing takes place.
var ErrInvalidFieldElement = errors.New("value is not a canonical field element")

// FromBig converts v into a field element. Nil, negative, and non-reduced
// values are rejected rather than silently reduced.
func FromBig(v *big.Int) (fr.Element, error) {
	var e fr.Element
	if v == nil || v.Sign() < 0 || v.Cmp(fr.Modulus()) >= 0 {
		return e, ErrInvalidFieldElement
	}
	e.SetBigInt(v)
	return e, nil
}

// FromUint64 lifts a machine integer into the field.
func FromUint64(v uint64) fr.Element {
	var e fr.Element
	e.SetUint64(v)
	return e
}

// ToBig returns the canonical integer representation of e.
func ToBig(e fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}

// Random draws a uniform field element from crypto/rand.
func Random() fr.Element {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		// SetRandom only fails if the system entropy source does.
		panic(err)
	}
	return e
}
