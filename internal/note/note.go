// note.go - Shielded notes and the commitment scheme binding them.
//
// A note is the unit of value in the pool. Its full economic and ownership
// state collapses into a single field element (the commitment) which is the
// only thing ever published on the ledger.

package note

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"

	"github.com/zorb-labs/zorbcore/internal/field"
)

// domainTag is hashed as the first commitment input and separates this
// protocol's notes from any other system using the same hash.
var domainTag = func() fr.Element {
	var e fr.Element
	e.SetBytes([]byte("zorb/shielded-note"))
	return e
}()

// DomainTag returns the protocol's commitment domain separator.
func DomainTag() fr.Element {
	return domainTag
}

// CircuitVersion pins a note to exactly one circuit generation. A note
// committed under version V is unspendable by logic compiled for any other
// version: the commitment, and hence every tree lookup, would not match.
type CircuitVersion uint8

const (
	// VersionGenesis is the first deployed circuit generation.
	VersionGenesis CircuitVersion = 1
)

// ActiveVersion is the circuit generation currently enforcing spends.
const ActiveVersion = VersionGenesis

// ErrUnknownVersion reports a version tag outside the closed set of
// supported circuit generations.
var ErrUnknownVersion = errors.New("unrecognized circuit version")

// Supported reports whether v names a known circuit generation.
func (v CircuitVersion) Supported() bool {
	return v == VersionGenesis
}

// Element returns the version tag as a field element for hashing.
func (v CircuitVersion) Element() fr.Element {
	return field.FromUint64(uint64(v))
}

// Note is the private state bound by one commitment.
type Note struct {
	Version     CircuitVersion
	AssetID     fr.Element
	Amount      fr.Element
	Pk          fr.Element // owner's public spending identity
	Blinding    fr.Element
	RewardEntry fr.Element // reward accumulator snapshot at creation
	Rho         fr.Element // uniqueness parameter, see Mint and ChainedOutput
}

// Mint creates a freshly shielded note with caller-independent blinding and
// rho randomness. assetID, amount, and rewardEntry must be canonical field
// elements.
func Mint(version CircuitVersion, assetID, amount, rewardEntry *big.Int, pk fr.Element) (*Note, error) {
	n, err := build(version, assetID, amount, rewardEntry, pk)
	if err != nil {
		return nil, err
	}
	n.Rho = field.Random()
	return n, nil
}

// ChainedOutput creates the note produced by spending another: its rho is
// the funding note's nullifier. Chaining spends to outputs this way removes
// any dependency on tree position from nullifier computation.
func ChainedOutput(version CircuitVersion, assetID, amount, rewardEntry *big.Int, pk fr.Element, fundingNullifier fr.Element) (*Note, error) {
	n, err := build(version, assetID, amount, rewardEntry, pk)
	if err != nil {
		return nil, err
	}
	n.Rho = fundingNullifier
	return n, nil
}

func build(version CircuitVersion, assetID, amount, rewardEntry *big.Int, pk fr.Element) (*Note, error) {
	if !version.Supported() {
		return nil, errors.Wrapf(ErrUnknownVersion, "version %d", version)
	}
	asset, err := field.FromBig(assetID)
	if err != nil {
		return nil, errors.Wrap(err, "asset id")
	}
	amt, err := field.FromBig(amount)
	if err != nil {
		return nil, errors.Wrap(err, "amount")
	}
	entry, err := field.FromBig(rewardEntry)
	if err != nil {
		return nil, errors.Wrap(err, "reward accumulator")
	}
	return &Note{
		Version:     version,
		AssetID:     asset,
		Amount:      amt,
		Pk:          pk,
		Blinding:    field.Random(),
		RewardEntry: entry,
	}, nil
}

// Commitment binds every note field into one element:
//
//	H(domain, version, assetID, amount, pk, blinding, rewardEntry, rho)
//
// A commitment under an inactive version is not an error here; it is simply
// foreign to the active spend circuit.
func (n *Note) Commitment(h field.Hasher) fr.Element {
	return h.Hash(
		domainTag,
		n.Version.Element(),
		n.AssetID,
		n.Amount,
		n.Pk,
		n.Blinding,
		n.RewardEntry,
		n.Rho,
	)
}
