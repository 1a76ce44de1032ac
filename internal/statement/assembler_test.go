package statement

import (
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zorb-labs/zorbcore/internal/field"
	"github.com/zorb-labs/zorbcore/internal/keys"
	"github.com/zorb-labs/zorbcore/internal/merkle"
	"github.com/zorb-labs/zorbcore/internal/note"
	"github.com/zorb-labs/zorbcore/internal/nullset"
	"github.com/zorb-labs/zorbcore/internal/reward"
)

type fixture struct {
	h     field.Hasher
	ks    keys.SpendKeySet
	tree  *merkle.Tree
	set   *nullset.Set
	notes [NumInputs]*note.Note
	req   Request
}

// newFixture funds the spender with two notes (600 and 400 at entry rate
// 1.00), freezes the rate at 1.25, and requests outputs 1200 and 49 with a
// fee of 1: the scaled credit 1000 * 1.25 exactly covers 1250.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := field.NewMiMC()

	ask, nsk := big.NewInt(111), big.NewInt(222)
	ks, err := keys.Derive(h, ask, nsk)
	require.NoError(t, err)

	rate := new(big.Int).Mul(big.NewInt(125), new(big.Int).Quo(reward.Scale, big.NewInt(100)))

	f := &fixture{
		h:    h,
		ks:   ks,
		tree: merkle.NewTree(h, 8),
		set:  nullset.NewSet(h, 8),
	}
	for i, amount := range []int64{600, 400} {
		n, err := note.Mint(note.ActiveVersion, big.NewInt(1), big.NewInt(amount), reward.Scale, ks.Pk)
		require.NoError(t, err)
		f.notes[i] = n
		_, err = f.tree.Insert(n.Commitment(h))
		require.NoError(t, err)
	}

	f.req = Request{
		Ask:        ask,
		Nsk:        nsk,
		Fee:        big.NewInt(1),
		FrozenRate: rate,
		Recipient:  big.NewInt(0xbeef),
		Relayer:    big.NewInt(0xcafe),
	}
	for i, n := range f.notes {
		w, err := f.tree.Witness(uint64(i))
		require.NoError(t, err)
		cm := n.Commitment(h)
		nf := note.Nullify(h, ks.Nk, n.Rho, cm)
		lp, err := f.set.ProveNonMembership(nf)
		require.NoError(t, err)
		f.req.Inputs[i] = SpendInput{Note: *n, Witness: w, LowProof: lp}
	}
	f.req.Outputs = [NumOutputs]OutputSpec{
		{AssetID: big.NewInt(1), Amount: big.NewInt(1200), Pk: field.FromUint64(77)},
		{AssetID: big.NewInt(1), Amount: big.NewInt(49), Pk: ks.Pk},
	}
	return f
}

func TestAssembleValidSpend(t *testing.T) {
	f := newFixture(t)
	st, err := NewAssembler(f.h).Assemble(f.req)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, st.ID)

	root := f.tree.Root()
	require.True(t, st.Public.CommitmentRoot.Equal(&root))
	nroot := f.set.Root()
	require.True(t, st.Public.NullifierRoot.Equal(&nroot))
	require.Equal(t, note.ActiveVersion, st.Public.Version)

	for i := range st.Public.Nullifiers {
		cm := f.notes[i].Commitment(f.h)
		want := note.Nullify(f.h, f.ks.Nk, f.notes[i].Rho, cm)
		require.True(t, st.Public.Nullifiers[i].Equal(&want))

		// Outputs chain: each new note's rho is the matching nullifier.
		out := st.Private.Outputs[i]
		require.True(t, out.Rho.Equal(&want))
		wantEntry, err := field.FromBig(f.req.FrozenRate)
		require.NoError(t, err)
		require.True(t, out.RewardEntry.Equal(&wantEntry))
		wantCm := out.Commitment(f.h)
		require.True(t, st.Public.NewCommitments[i].Equal(&wantCm))
	}
}

func TestAssembleRejectsForeignNote(t *testing.T) {
	f := newFixture(t)
	f.req.Inputs[1].Note.Pk = field.FromUint64(999)
	_, err := NewAssembler(f.h).Assemble(f.req)
	require.ErrorIs(t, err, ErrMalformedInputSet)
}

func TestAssembleRejectsVersionMismatch(t *testing.T) {
	f := newFixture(t)
	f.req.Inputs[0].Note.Version = note.CircuitVersion(2)
	_, err := NewAssembler(f.h).Assemble(f.req)
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestAssembleRejectsDoubleSpendWithinTx(t *testing.T) {
	f := newFixture(t)
	f.req.Inputs[1] = f.req.Inputs[0]
	_, err := NewAssembler(f.h).Assemble(f.req)
	require.ErrorIs(t, err, note.ErrDuplicateNullifierInTx)
}

func TestAssembleRejectsMismatchedRoots(t *testing.T) {
	f := newFixture(t)
	// A witness from a diverged tree carries a different root.
	other := merkle.NewTree(f.h, 8)
	_, err := other.Insert(f.notes[0].Commitment(f.h))
	require.NoError(t, err)
	w, err := other.Witness(0)
	require.NoError(t, err)
	f.req.Inputs[0].Witness = w
	_, err = NewAssembler(f.h).Assemble(f.req)
	require.ErrorIs(t, err, ErrMalformedInputSet)
}

func TestAssembleRejectsDivergedNullifierRoots(t *testing.T) {
	f := newFixture(t)
	// Mutate the set, then refresh only input 1's proof: the two inputs now
	// prove against different nullifier roots.
	_, _, err := f.set.Insert(field.FromUint64(12345))
	require.NoError(t, err)
	cm := f.notes[1].Commitment(f.h)
	nf := note.Nullify(f.h, f.ks.Nk, f.notes[1].Rho, cm)
	lp, err := f.set.ProveNonMembership(nf)
	require.NoError(t, err)
	f.req.Inputs[1].LowProof = lp

	_, err = NewAssembler(f.h).Assemble(f.req)
	require.ErrorIs(t, err, ErrMalformedInputSet)
}

func TestAssembleRejectsImbalance(t *testing.T) {
	f := newFixture(t)
	f.req.Outputs[0].Amount = big.NewInt(1201)
	_, err := NewAssembler(f.h).Assemble(f.req)
	require.ErrorIs(t, err, ErrValueImbalance)
}

func TestAssembleRejectsBadScalars(t *testing.T) {
	f := newFixture(t)
	f.req.Fee = big.NewInt(-1)
	_, err := NewAssembler(f.h).Assemble(f.req)
	require.ErrorIs(t, err, field.ErrInvalidFieldElement)
}
