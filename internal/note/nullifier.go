// nullifier.go - Position-independent spend markers.

package note

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"

	"github.com/zorb-labs/zorbcore/internal/field"
)

// MaxTxInputs bounds the number of notes one transaction may consume.
const MaxTxInputs = 8

// ErrDuplicateNullifierInTx reports a transaction that nullifies the same
// note twice. It is raised locally, before any proving work.
var ErrDuplicateNullifierInTx = errors.New("transaction nullifies the same note twice")

// Nullify derives the unique spend marker for a note:
//
//	nf = H(nk, rho, commitment)
//
// The function reads nothing but its arguments; in particular the note's
// position in the commitment tree never enters, so the nullifier is stable
// across reorganizations of witness material.
func Nullify(h field.Hasher, nk, rho, commitment fr.Element) fr.Element {
	return h.Hash(nk, rho, commitment)
}

// DistinctNullifiers rejects a spend set that contains the same nullifier
// twice. The input count is bounded by MaxTxInputs, so the quadratic scan
// costs nothing.
func DistinctNullifiers(nfs []fr.Element) error {
	if len(nfs) > MaxTxInputs {
		return errors.Errorf("spend set of %d exceeds the %d-input bound", len(nfs), MaxTxInputs)
	}
	for i := 0; i < len(nfs); i++ {
		for j := i + 1; j < len(nfs); j++ {
			if nfs[i].Equal(&nfs[j]) {
				return errors.Wrapf(ErrDuplicateNullifierInTx, "inputs %d and %d", i, j)
			}
		}
	}
	return nil
}
