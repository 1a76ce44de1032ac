// keys.go - Deterministic key derivation for the shielded pool.
//
// Two externally supplied secrets (ask, nsk) expand through a one-way hash
// chain into the public spending identity. The chain is strictly
// feed-forward: recovering either secret from any public output requires
// inverting MiMC.

package keys

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"

	"github.com/zorb-labs/zorbcore/internal/field"
)

// SpendKeySet is the derived half of a wallet identity.
//
//	ak  = H(ask)      spend-authorizing key
//	nk  = H(nsk)      nullifier key
//	ivk = H(ak, nk)   incoming viewing key
//	pk  = H(ivk)      public spending identity (note address)
type SpendKeySet struct {
	Ak  fr.Element
	Nk  fr.Element
	Ivk fr.Element
	Pk  fr.Element
}

// Derive expands the spending secrets into the full key chain. It is pure
// and deterministic, so a wallet recovered from the same (ask, nsk) always
// reproduces the same identity. The only failure mode is a secret outside
// the field.
func Derive(h field.Hasher, ask, nsk *big.Int) (SpendKeySet, error) {
	a, err := field.FromBig(ask)
	if err != nil {
		return SpendKeySet{}, errors.Wrap(err, "ask")
	}
	n, err := field.FromBig(nsk)
	if err != nil {
		return SpendKeySet{}, errors.Wrap(err, "nsk")
	}

	var ks SpendKeySet
	ks.Ak = h.Hash(a)
	ks.Nk = h.Hash(n)
	ks.Ivk = h.Hash(ks.Ak, ks.Nk)
	ks.Pk = h.Hash(ks.Ivk)
	return ks, nil
}
