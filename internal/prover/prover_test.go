package prover

import (
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zorb-labs/zorbcore/internal/field"
)

// The full Groth16 round trip compiles the circuit and runs trusted setup,
// which takes a while; -short sticks to the solver-based tests.
func TestGroth16RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}

	backend, err := NewGroth16Backend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	st := validStatement(t)
	proof, err := backend.Prove(st)
	require.NoError(t, err)
	require.Equal(t, st.ID.String(), proof.StatementID)
	require.NotEmpty(t, proof.Data)

	require.NoError(t, backend.Verify(proof, st.Public))

	// Any tampered public signal must fail verification.
	tampered := st.Public
	bad := new(big.Int).Add(field.ToBig(tampered.Fee), big.NewInt(1))
	badFee, err := field.FromBig(bad)
	require.NoError(t, err)
	tampered.Fee = badFee
	require.Error(t, backend.Verify(proof, tampered))

	// Garbage bytes must not deserialize into a valid proof.
	require.Error(t, backend.Verify(&Proof{StatementID: proof.StatementID, Data: []byte("junk")}, st.Public))
}

func TestSetupOrLoadKeysReusesPersistedKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}

	dir := t.TempDir()
	a, err := NewGroth16Backend(dir, zerolog.Nop())
	require.NoError(t, err)

	// Second start must load the same keys, so a proof made with the first
	// backend verifies under the second.
	b, err := NewGroth16Backend(dir, zerolog.Nop())
	require.NoError(t, err)

	st := validStatement(t)
	proof, err := a.Prove(st)
	require.NoError(t, err)
	require.NoError(t, b.Verify(proof, st.Public))
}
