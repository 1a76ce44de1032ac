// prover.go - Groth16 backend for the spend circuit.
//
// Compilation and trusted setup are expensive, so keys persist on disk and
// are loaded on subsequent starts. The proving and verifying halves are
// split into interfaces because most deployments run them on different
// machines: wallets prove, the ledger verifies.

package prover

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zorb-labs/zorbcore/internal/field"
	"github.com/zorb-labs/zorbcore/internal/statement"
)

// Proof is a serialized Groth16 proof bound to the statement it proves.
type Proof struct {
	StatementID string `json:"statement_id"`
	Data        []byte `json:"data"`
}

// Backend turns assembled statements into proofs.
type Backend interface {
	Prove(st *statement.Statement) (*Proof, error)
}

// Verifier checks a proof against the public inputs alone.
type Verifier interface {
	Verify(p *Proof, pub statement.PublicInputs) error
}

// Groth16Backend implements both halves over one compiled circuit.
type Groth16Backend struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
	log zerolog.Logger
}

// NewGroth16Backend compiles the spend circuit and loads the Groth16 keys
// from keyDir, running setup and persisting fresh keys on first start.
func NewGroth16Backend(keyDir string, log zerolog.Logger) (*Groth16Backend, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &SpendCircuit{})
	if err != nil {
		return nil, errors.Wrap(err, "compile spend circuit")
	}
	log.Info().Int("constraints", ccs.GetNbConstraints()).Msg("spend circuit compiled")

	pk, vk, err := setupOrLoadKeys(ccs, filepath.Join(keyDir, "spend.pk"), filepath.Join(keyDir, "spend.vk"))
	if err != nil {
		return nil, errors.Wrap(err, "groth16 keys")
	}
	return &Groth16Backend{ccs: ccs, pk: pk, vk: vk, log: log}, nil
}

// Prove generates a proof for a fully assembled statement.
func (b *Groth16Backend) Prove(st *statement.Statement) (*Proof, error) {
	assignment, err := circuitAssignment(st)
	if err != nil {
		return nil, err
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, errors.Wrap(err, "build witness")
	}
	proof, err := groth16.Prove(b.ccs, b.pk, w)
	if err != nil {
		return nil, errors.Wrap(err, "prove")
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "serialize proof")
	}
	b.log.Debug().Str("statement", st.ID.String()).Msg("proof generated")
	return &Proof{StatementID: st.ID.String(), Data: buf.Bytes()}, nil
}

// Verify checks p against the public inputs. The private half of the
// assignment stays zero; only public signals enter the witness.
func (b *Groth16Backend) Verify(p *Proof, pub statement.PublicInputs) error {
	assignment := publicAssignment(pub)
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return errors.Wrap(err, "build public witness")
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(p.Data)); err != nil {
		return errors.Wrap(err, "deserialize proof")
	}
	if err := groth16.Verify(proof, b.vk, w); err != nil {
		return errors.Wrap(err, "verify")
	}
	return nil
}

// VerifyingKey exposes the verifying half for out-of-process verifiers.
func (b *Groth16Backend) VerifyingKey() groth16.VerifyingKey {
	return b.vk
}

// circuitAssignment maps an assembled statement onto the circuit's wires.
func circuitAssignment(st *statement.Statement) (*SpendCircuit, error) {
	c := publicAssignment(st.Public)
	c.Ask = field.ToBig(st.Private.Ask)
	c.Nsk = field.ToBig(st.Private.Nsk)

	for i := range st.Private.Inputs {
		in := &st.Private.Inputs[i]
		if len(in.Witness.Siblings) != TreeDepth || len(in.LowProof.Siblings) != TreeDepth {
			return nil, errors.Errorf("input %d: openings must have depth %d", i, TreeDepth)
		}
		ci := &c.Inputs[i]
		ci.AssetID = field.ToBig(in.Note.AssetID)
		ci.Amount = field.ToBig(in.Note.Amount)
		ci.Blinding = field.ToBig(in.Note.Blinding)
		ci.RewardEntry = field.ToBig(in.Note.RewardEntry)
		ci.Rho = field.ToBig(in.Note.Rho)
		ci.LeafIndex = in.Witness.Index
		for j, s := range in.Witness.Siblings {
			ci.Siblings[j] = field.ToBig(s)
		}
		ci.LowValue = field.ToBig(in.LowProof.Low.Value)
		ci.LowNextValue = field.ToBig(in.LowProof.Low.NextValue)
		ci.LowNextIndex = in.LowProof.Low.NextIndex
		ci.LowLeafIndex = in.LowProof.LowIndex
		for j, s := range in.LowProof.Siblings {
			ci.LowSiblings[j] = field.ToBig(s)
		}
	}
	for i := range st.Private.Outputs {
		out := &st.Private.Outputs[i]
		c.Outputs[i] = outputNote{
			AssetID:  field.ToBig(out.AssetID),
			Amount:   field.ToBig(out.Amount),
			Pk:       field.ToBig(out.Pk),
			Blinding: field.ToBig(out.Blinding),
		}
	}
	return c, nil
}

func publicAssignment(pub statement.PublicInputs) *SpendCircuit {
	c := &SpendCircuit{
		CommitmentRoot:   field.ToBig(pub.CommitmentRoot),
		NullifierRoot:    field.ToBig(pub.NullifierRoot),
		RecipientBinding: field.ToBig(pub.RecipientBinding),
		RelayerBinding:   field.ToBig(pub.RelayerBinding),
		Fee:              field.ToBig(pub.Fee),
		FrozenRate:       field.ToBig(pub.FrozenRate),
		Version:          uint64(pub.Version),
	}
	for i := range pub.Nullifiers {
		c.Nullifiers[i] = field.ToBig(pub.Nullifiers[i])
	}
	for i := range pub.NewCommitments {
		c.NewCommitments[i] = field.ToBig(pub.NewCommitments[i])
	}
	return c
}

func setupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, pkErr := loadProvingKey(pkPath)
	vk, vkErr := loadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "setup")
	}
	if err := saveKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := saveKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}

func saveKey(path string, k io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	if _, err := k.WriteTo(f); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func loadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	_, err = pk.ReadFrom(f)
	return pk, err
}

func loadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	_, err = vk.ReadFrom(f)
	return vk, err
}
