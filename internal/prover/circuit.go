// circuit.go - The in-circuit restatement of a shielded spend.
//
// Every rule the assembler checks in plaintext is re-proved here over
// hidden values: key derivation, commitment openings, nullifier
// correctness, nullifier-set non-membership via the low element, and the
// scaled value-conservation equation. The circuit shape is fixed at
// compile time; TreeDepth and the 2-in 2-out arity are part of the proving
// key's identity.

package prover

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"github.com/zorb-labs/zorbcore/internal/field"
	"github.com/zorb-labs/zorbcore/internal/note"
	"github.com/zorb-labs/zorbcore/internal/reward"
	"github.com/zorb-labs/zorbcore/internal/statement"
)

// TreeDepth is the Merkle depth both accumulators are proved against.
const TreeDepth = 16

// amountBits bounds note amounts and fees; rateBits bounds accumulator
// rates. Range checks keep the conservation equation free of field
// wraparound.
const (
	amountBits = 64
	rateBits   = 128
)

// spendInput is the private witness for one consumed note. The owner's pk
// is never supplied; it is recomputed from the spending secrets.
type spendInput struct {
	AssetID     frontend.Variable
	Amount      frontend.Variable
	Blinding    frontend.Variable
	RewardEntry frontend.Variable
	Rho         frontend.Variable

	// Commitment tree opening.
	LeafIndex frontend.Variable
	Siblings  [TreeDepth]frontend.Variable

	// Nullifier set low-element opening.
	LowValue     frontend.Variable
	LowNextValue frontend.Variable
	LowNextIndex frontend.Variable
	LowLeafIndex frontend.Variable
	LowSiblings  [TreeDepth]frontend.Variable
}

// outputNote is the private witness for one created note. Its rho and
// reward entry are not free: they are pinned to the matching public
// nullifier and the public frozen rate.
type outputNote struct {
	AssetID  frontend.Variable
	Amount   frontend.Variable
	Pk       frontend.Variable
	Blinding frontend.Variable
}

// SpendCircuit proves one 2-in 2-out spend against published roots.
type SpendCircuit struct {
	CommitmentRoot   frontend.Variable                               `gnark:",public"`
	NullifierRoot    frontend.Variable                               `gnark:",public"`
	Nullifiers       [statement.NumInputs]frontend.Variable          `gnark:",public"`
	NewCommitments   [statement.NumOutputs]frontend.Variable         `gnark:",public"`
	RecipientBinding frontend.Variable                               `gnark:",public"`
	RelayerBinding   frontend.Variable                               `gnark:",public"`
	Fee              frontend.Variable                               `gnark:",public"`
	FrozenRate       frontend.Variable                               `gnark:",public"`
	Version          frontend.Variable                               `gnark:",public"`

	Ask     frontend.Variable
	Nsk     frontend.Variable
	Inputs  [statement.NumInputs]spendInput
	Outputs [statement.NumOutputs]outputNote
}

func (c *SpendCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hash := func(vs ...frontend.Variable) frontend.Variable {
		hasher.Reset()
		hasher.Write(vs...)
		return hasher.Sum()
	}

	// Key chain: ak = H(ask), nk = H(nsk), ivk = H(ak, nk), pk = H(ivk).
	ak := hash(c.Ask)
	nk := hash(c.Nsk)
	pk := hash(hash(ak, nk))

	domain := field.ToBig(note.DomainTag())

	api.AssertIsLessOrEqual(c.Fee, maxFor(amountBits))
	api.AssertIsLessOrEqual(c.FrozenRate, maxFor(rateBits))

	// Squaring the bindings pulls them into the constraint system; without
	// a constraint touching them a relayer could swap the public values
	// under an existing proof.
	api.Mul(c.RecipientBinding, c.RecipientBinding)
	api.Mul(c.RelayerBinding, c.RelayerBinding)

	inScaled := frontend.Variable(0)
	for i := range c.Inputs {
		in := &c.Inputs[i]
		api.AssertIsLessOrEqual(in.Amount, maxFor(amountBits))
		api.AssertIsLessOrEqual(in.RewardEntry, c.FrozenRate)
		api.AssertIsEqual(in.AssetID, c.Inputs[0].AssetID)

		cm := hash(domain, c.Version, in.AssetID, in.Amount, pk, in.Blinding, in.RewardEntry, in.Rho)
		api.AssertIsEqual(c.Nullifiers[i], hash(nk, in.Rho, cm))

		root := merklePath(api, hash, cm, in.LeafIndex, in.Siblings[:])
		api.AssertIsEqual(c.CommitmentRoot, root)

		// The low element must open under the published nullifier root and
		// its gap must strictly contain the nullifier. A zero next-index
		// marks the list tail, where the upper bound is vacuous.
		lowLeaf := hash(in.LowValue, in.LowNextValue, in.LowNextIndex)
		lowRoot := merklePath(api, hash, lowLeaf, in.LowLeafIndex, in.LowSiblings[:])
		api.AssertIsEqual(c.NullifierRoot, lowRoot)
		api.AssertIsLessOrEqual(api.Add(in.LowValue, 1), c.Nullifiers[i])
		isTail := api.IsZero(in.LowNextIndex)
		below := api.Cmp(c.Nullifiers[i], in.LowNextValue)
		api.AssertIsEqual(api.Select(isTail, -1, below), -1)

		// Scaled credit: amount * (Scale + frozenRate - entry).
		credit := api.Sub(api.Add(scaleConst(), c.FrozenRate), in.RewardEntry)
		inScaled = api.Add(inScaled, api.Mul(in.Amount, credit))
	}
	// Both inputs nullify distinct notes.
	api.AssertIsDifferent(c.Nullifiers[0], c.Nullifiers[1])

	outSum := c.Fee
	for i := range c.Outputs {
		out := &c.Outputs[i]
		api.AssertIsLessOrEqual(out.Amount, maxFor(amountBits))
		api.AssertIsEqual(out.AssetID, c.Inputs[0].AssetID)

		// Output rho chains to the matching input's nullifier; the entry
		// snapshot is the public frozen rate.
		cm := hash(domain, c.Version, out.AssetID, out.Amount, out.Pk, out.Blinding, c.FrozenRate, c.Nullifiers[i])
		api.AssertIsEqual(c.NewCommitments[i], cm)
		outSum = api.Add(outSum, out.Amount)
	}

	// Scale * (outputs + fee) == scaled input credit.
	api.AssertIsEqual(api.Mul(scaleConst(), outSum), inScaled)
	return nil
}

// merklePath folds leaf up to the root, choosing hash order per index bit.
func merklePath(api frontend.API, hash func(...frontend.Variable) frontend.Variable, leaf, index frontend.Variable, siblings []frontend.Variable) frontend.Variable {
	bits := api.ToBinary(index, len(siblings))
	cur := leaf
	for i := range siblings {
		left := api.Select(bits[i], siblings[i], cur)
		right := api.Select(bits[i], cur, siblings[i])
		cur = hash(left, right)
	}
	return cur
}

func scaleConst() *big.Int {
	return new(big.Int).Set(reward.Scale)
}

func maxFor(bits uint) *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), bits)
	return m.Sub(m, big.NewInt(1))
}
