package note

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/zorb-labs/zorbcore/internal/field"
)

func TestMintValidatesInputs(t *testing.T) {
	pk := field.FromUint64(1)
	overflow := new(big.Int).Set(fr.Modulus())

	_, err := Mint(CircuitVersion(99), big.NewInt(1), big.NewInt(1), big.NewInt(0), pk)
	require.ErrorIs(t, err, ErrUnknownVersion)

	_, err = Mint(VersionGenesis, overflow, big.NewInt(1), big.NewInt(0), pk)
	require.ErrorIs(t, err, field.ErrInvalidFieldElement)

	_, err = Mint(VersionGenesis, big.NewInt(1), overflow, big.NewInt(0), pk)
	require.ErrorIs(t, err, field.ErrInvalidFieldElement)

	_, err = Mint(VersionGenesis, big.NewInt(1), big.NewInt(1), overflow, pk)
	require.ErrorIs(t, err, field.ErrInvalidFieldElement)
}

func TestCommitmentDeterministic(t *testing.T) {
	h := field.NewMiMC()
	n, err := Mint(VersionGenesis, big.NewInt(1), big.NewInt(1000), big.NewInt(0), field.FromUint64(77))
	require.NoError(t, err)

	first := n.Commitment(h)
	second := n.Commitment(h)
	require.True(t, first.Equal(&second))
}

// Empirical injectivity: 10,000 random distinct note tuples must produce
// 10,000 distinct commitments.
func TestCommitmentInjectivity(t *testing.T) {
	h := field.NewMiMC()
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		n := &Note{
			Version:     VersionGenesis,
			AssetID:     field.Random(),
			Amount:      field.Random(),
			Pk:          field.Random(),
			Blinding:    field.Random(),
			RewardEntry: field.Random(),
			Rho:         field.Random(),
		}
		c := n.Commitment(h)
		cm := c.String()
		require.False(t, seen[cm], "commitment collision at sample %d", i)
		seen[cm] = true
	}
}

func TestCommitmentVersionIsolation(t *testing.T) {
	h := field.NewMiMC()
	n, err := Mint(VersionGenesis, big.NewInt(1), big.NewInt(5), big.NewInt(0), field.FromUint64(9))
	require.NoError(t, err)

	active := n.Commitment(h)
	foreign := *n
	foreign.Version = CircuitVersion(2)
	// A foreign-version commitment is still computable, just never spendable
	// by the active circuit.
	foreignCm := foreign.Commitment(h)
	require.False(t, active.Equal(&foreignCm))
}

func TestChainedOutputCarriesFundingNullifier(t *testing.T) {
	h := field.NewMiMC()
	funding, err := Mint(VersionGenesis, big.NewInt(1), big.NewInt(100), big.NewInt(0), field.FromUint64(3))
	require.NoError(t, err)

	nk := field.FromUint64(555)
	nf := Nullify(h, nk, funding.Rho, funding.Commitment(h))

	out, err := ChainedOutput(VersionGenesis, big.NewInt(1), big.NewInt(100), big.NewInt(0), field.FromUint64(4), nf)
	require.NoError(t, err)
	require.True(t, out.Rho.Equal(&nf))
}

func TestNullifyIgnoresEverythingButItsArguments(t *testing.T) {
	h := field.NewMiMC()
	nk := field.FromUint64(12)
	rho := field.FromUint64(34)
	cm := field.FromUint64(56)

	a := Nullify(h, nk, rho, cm)
	b := Nullify(h, nk, rho, cm)
	require.True(t, a.Equal(&b))

	otherRho := field.FromUint64(35)
	c := Nullify(h, nk, otherRho, cm)
	require.False(t, a.Equal(&c))
}

func TestDistinctNullifiers(t *testing.T) {
	a := field.FromUint64(1)
	b := field.FromUint64(2)
	c := field.FromUint64(1)

	require.NoError(t, DistinctNullifiers([]fr.Element{a, b}))
	require.ErrorIs(t, DistinctNullifiers([]fr.Element{a, b, c}), ErrDuplicateNullifierInTx)

	tooMany := make([]fr.Element, MaxTxInputs+1)
	for i := range tooMany {
		tooMany[i] = field.FromUint64(uint64(i))
	}
	require.Error(t, DistinctNullifiers(tooMany))
}
