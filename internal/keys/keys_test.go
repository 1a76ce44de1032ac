package keys

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/zorb-labs/zorbcore/internal/field"
)

func TestDeriveDeterministic(t *testing.T) {
	h := field.NewMiMC()
	ask := big.NewInt(123456789)
	nsk := big.NewInt(987654321)

	first, err := Derive(h, ask, nsk)
	require.NoError(t, err)
	second, err := Derive(h, ask, nsk)
	require.NoError(t, err)

	require.True(t, first.Ak.Equal(&second.Ak))
	require.True(t, first.Nk.Equal(&second.Nk))
	require.True(t, first.Ivk.Equal(&second.Ivk))
	require.True(t, first.Pk.Equal(&second.Pk))
}

func TestDeriveRejectsNonCanonicalSecrets(t *testing.T) {
	h := field.NewMiMC()
	tooBig := new(big.Int).Set(fr.Modulus())

	_, err := Derive(h, tooBig, big.NewInt(1))
	require.ErrorIs(t, err, field.ErrInvalidFieldElement)

	_, err = Derive(h, big.NewInt(1), tooBig)
	require.ErrorIs(t, err, field.ErrInvalidFieldElement)

	_, err = Derive(h, nil, big.NewInt(1))
	require.ErrorIs(t, err, field.ErrInvalidFieldElement)
}

func TestDeriveDistinctSecretsDistinctIdentity(t *testing.T) {
	h := field.NewMiMC()
	seen := make(map[string]bool)
	for i := int64(1); i <= 64; i++ {
		ks, err := Derive(h, big.NewInt(i), big.NewInt(i+1000))
		require.NoError(t, err)
		pk := ks.Pk.String()
		require.False(t, seen[pk], "pk collision for secret %d", i)
		seen[pk] = true
	}
}

func TestDeriveChainStructure(t *testing.T) {
	h := field.NewMiMC()
	ask := big.NewInt(42)
	nsk := big.NewInt(43)
	ks, err := Derive(h, ask, nsk)
	require.NoError(t, err)

	a, _ := field.FromBig(ask)
	n, _ := field.FromBig(nsk)
	ak := h.Hash(a)
	nk := h.Hash(n)
	ivk := h.Hash(ak, nk)
	pk := h.Hash(ivk)

	require.True(t, ks.Ak.Equal(&ak))
	require.True(t, ks.Nk.Equal(&nk))
	require.True(t, ks.Ivk.Equal(&ivk))
	require.True(t, ks.Pk.Equal(&pk))
}
