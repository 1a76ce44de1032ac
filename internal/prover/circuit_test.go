package prover

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"
	"github.com/stretchr/testify/require"

	"github.com/zorb-labs/zorbcore/internal/field"
	"github.com/zorb-labs/zorbcore/internal/keys"
	"github.com/zorb-labs/zorbcore/internal/merkle"
	"github.com/zorb-labs/zorbcore/internal/note"
	"github.com/zorb-labs/zorbcore/internal/nullset"
	"github.com/zorb-labs/zorbcore/internal/reward"
	"github.com/zorb-labs/zorbcore/internal/statement"
)

// validStatement assembles a spend at the circuit's real depth: two funding
// notes of 600 and 400 at entry rate 1.00, frozen rate 1.25, outputs 1200
// and 49, fee 1.
func validStatement(t *testing.T) *statement.Statement {
	t.Helper()
	h := field.NewMiMC()

	ask, nsk := big.NewInt(111), big.NewInt(222)
	ks, err := keys.Derive(h, ask, nsk)
	require.NoError(t, err)

	tree := merkle.NewTree(h, TreeDepth)
	set := nullset.NewSet(h, TreeDepth)
	rate := new(big.Int).Mul(big.NewInt(125), new(big.Int).Quo(reward.Scale, big.NewInt(100)))

	req := statement.Request{
		Ask:        ask,
		Nsk:        nsk,
		Fee:        big.NewInt(1),
		FrozenRate: rate,
		Recipient:  big.NewInt(0xbeef),
		Relayer:    big.NewInt(0xcafe),
	}
	var notes [statement.NumInputs]*note.Note
	for i, amount := range []int64{600, 400} {
		n, err := note.Mint(note.ActiveVersion, big.NewInt(1), big.NewInt(amount), reward.Scale, ks.Pk)
		require.NoError(t, err)
		notes[i] = n
		_, err = tree.Insert(n.Commitment(h))
		require.NoError(t, err)
	}
	for i, n := range notes {
		w, err := tree.Witness(uint64(i))
		require.NoError(t, err)
		nf := note.Nullify(h, ks.Nk, n.Rho, n.Commitment(h))
		lp, err := set.ProveNonMembership(nf)
		require.NoError(t, err)
		req.Inputs[i] = statement.SpendInput{Note: *n, Witness: w, LowProof: lp}
	}
	req.Outputs = [statement.NumOutputs]statement.OutputSpec{
		{AssetID: big.NewInt(1), Amount: big.NewInt(1200), Pk: field.FromUint64(77)},
		{AssetID: big.NewInt(1), Amount: big.NewInt(49), Pk: ks.Pk},
	}

	st, err := statement.NewAssembler(h).Assemble(req)
	require.NoError(t, err)
	return st
}

func TestSpendCircuitSolves(t *testing.T) {
	st := validStatement(t)
	a, err := circuitAssignment(st)
	require.NoError(t, err)
	require.NoError(t, test.IsSolved(&SpendCircuit{}, a, ecc.BN254.ScalarField()))
}

func TestSpendCircuitRejectsTamperedNullifier(t *testing.T) {
	st := validStatement(t)
	a, err := circuitAssignment(st)
	require.NoError(t, err)
	bad := new(big.Int).Add(field.ToBig(st.Public.Nullifiers[0]), big.NewInt(1))
	a.Nullifiers[0] = bad
	require.Error(t, test.IsSolved(&SpendCircuit{}, a, ecc.BN254.ScalarField()))
}

func TestSpendCircuitRejectsInflatedFee(t *testing.T) {
	st := validStatement(t)
	a, err := circuitAssignment(st)
	require.NoError(t, err)
	a.Fee = new(big.Int).Add(field.ToBig(st.Public.Fee), big.NewInt(1))
	require.Error(t, test.IsSolved(&SpendCircuit{}, a, ecc.BN254.ScalarField()))
}

func TestSpendCircuitRejectsForeignRoot(t *testing.T) {
	st := validStatement(t)
	a, err := circuitAssignment(st)
	require.NoError(t, err)
	a.CommitmentRoot = big.NewInt(12345)
	require.Error(t, test.IsSolved(&SpendCircuit{}, a, ecc.BN254.ScalarField()))
}

func TestSpendCircuitRejectsGapViolation(t *testing.T) {
	st := validStatement(t)
	a, err := circuitAssignment(st)
	require.NoError(t, err)
	// A low element equal to the nullifier models an already spent note;
	// the strict lower bound must fail even with a consistent Merkle path
	// unavailable to the prover.
	a.Inputs[0].LowValue = field.ToBig(st.Public.Nullifiers[0])
	require.Error(t, test.IsSolved(&SpendCircuit{}, a, ecc.BN254.ScalarField()))
}

func TestSpendCircuitRejectsWrongDepthOpenings(t *testing.T) {
	st := validStatement(t)
	st.Private.Inputs[0].Witness.Siblings = st.Private.Inputs[0].Witness.Siblings[:TreeDepth-1]
	_, err := circuitAssignment(st)
	require.Error(t, err)
}
